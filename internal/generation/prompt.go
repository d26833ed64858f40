package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// stageInstructions are the per-stage task description and required output
// shape. Every stage must answer with a single JSON object carrying
// "confidence" and "reasoning" alongside its payload.
var stageInstructions = map[domain.StageType]string{
	domain.StageAudience: `Identify the audience for this campaign.
Respond with one JSON object: {"confidence": <0-1>, "reasoning": "...",
"personas": [{"name", "description", "pain_points": [], "motivations": []}],
"segments": [], "key_insights": []}. Produce 2-4 personas.`,

	domain.StageChannel: `Design the channel strategy for this campaign using the audience insights provided.
Respond with one JSON object: {"confidence": <0-1>, "reasoning": "...",
"channels": [{"channel", "budget_share": <0-1>, "rationale"}],
"primary_channel": "...", "cadence": "..."}. Budget shares must sum to 1.`,

	domain.StageMessaging: `Write the messaging strategy for this campaign using the audience insights and channel strategy provided.
Respond with one JSON object: {"confidence": <0-1>, "reasoning": "...",
"pillars": [{"title", "message", "proof_points": []}],
"tone": "...", "call_to_action": "..."}. Produce 2-4 pillars.`,

	domain.StageContentCalendar: `Plan the content calendar for this campaign using the channel strategy and messaging strategy provided.
Respond with one JSON object: {"confidence": <0-1>, "reasoning": "...",
"entries": [{"date", "channel", "content_type", "title", "description"}],
"duration_weeks": <n>}. Cover every channel in the mix at least once.`,
}

const systemPreamble = `You are a marketing campaign co-pilot. You produce structured campaign artifacts as JSON. Respond with JSON only, no prose outside the object.`

// BuildPrompt renders the stage-specific prompt from the brief, the
// upstream artifacts already generated, and the ranked learned patterns
// supplied as prior hints.
func BuildPrompt(stage domain.StageType, brief domain.CampaignBrief, campaign *domain.GeneratedCampaign, patterns []domain.LearnedPattern) (Prompt, error) {
	instructions, ok := stageInstructions[stage]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt template for stage %q", stage)
	}

	var b strings.Builder
	b.WriteString("Campaign brief:\n")
	if err := writeJSON(&b, brief); err != nil {
		return Prompt{}, err
	}

	for _, upstream := range domain.RequiredUpstream(stage) {
		if !campaign.Has(upstream) {
			continue
		}
		fmt.Fprintf(&b, "\n%s artifact:\n", upstream)
		if err := writeJSON(&b, upstreamPayload(campaign, upstream)); err != nil {
			return Prompt{}, err
		}
	}

	if len(patterns) > 0 {
		b.WriteString("\nLearned from past user feedback (ranked, most trusted first):\n")
		for i, p := range patterns {
			fmt.Fprintf(&b, "%d. %s (confidence %.2f)\n", i+1, p.PatternData, p.ConfidenceScore)
		}
	}

	b.WriteString("\n")
	b.WriteString(instructions)

	return Prompt{
		Stage:  stage,
		System: systemPreamble,
		User:   b.String(),
	}, nil
}

func upstreamPayload(c *domain.GeneratedCampaign, s domain.StageType) any {
	switch s {
	case domain.StageAudience:
		return c.AudienceInsights
	case domain.StageChannel:
		return c.ChannelStrategy
	case domain.StageMessaging:
		return c.MessagingStrategy
	case domain.StageContentCalendar:
		return c.ContentCalendar
	}
	return nil
}

func writeJSON(b *strings.Builder, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prompt context: %w", err)
	}
	b.Write(data)
	b.WriteString("\n")
	return nil
}
