package generation

import (
	"context"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

// MockClient returns deterministic stage-shaped responses without calling
// an external model. It backs local runs and tests when no API key is
// configured.
type MockClient struct{}

var mockResponses = map[domain.StageType]string{
	domain.StageAudience: `{
		"confidence": 0.72,
		"reasoning": "Personas derived from the brief's target audience description.",
		"personas": [
			{"name": "Ops Olivia", "description": "Operations lead at a mid-market company", "pain_points": ["manual reporting"], "motivations": ["time savings"]},
			{"name": "Director Dana", "description": "Marketing director who owns the budget", "pain_points": ["attribution gaps"], "motivations": ["pipeline visibility"]}
		],
		"segments": ["mid-market", "operations"],
		"key_insights": ["decision is committee-driven"]
	}`,
	domain.StageChannel: `{
		"confidence": 0.68,
		"reasoning": "Mix leans on channels the brief already invests in.",
		"channels": [
			{"channel": "email", "budget_share": 0.4, "rationale": "strongest historical conversion"},
			{"channel": "linkedin", "budget_share": 0.35, "rationale": "reaches the buying committee"},
			{"channel": "webinars", "budget_share": 0.25, "rationale": "mid-funnel education"}
		],
		"primary_channel": "email",
		"cadence": "weekly"
	}`,
	domain.StageMessaging: `{
		"confidence": 0.7,
		"reasoning": "Pillars map one-to-one onto the brief's goals.",
		"pillars": [
			{"title": "Time back", "message": "Automate the busywork", "proof_points": ["saves 6 hours a week"]},
			{"title": "Full visibility", "message": "See every touch in one place", "proof_points": ["unified reporting"]}
		],
		"tone": "confident, practical",
		"call_to_action": "Book a walkthrough"
	}`,
	domain.StageContentCalendar: `{
		"confidence": 0.65,
		"reasoning": "Four-week ramp paced to the primary channel cadence.",
		"entries": [
			{"date": "week 1", "channel": "email", "content_type": "newsletter", "title": "Launch announcement"},
			{"date": "week 2", "channel": "linkedin", "content_type": "post", "title": "Customer story"},
			{"date": "week 3", "channel": "webinars", "content_type": "live session", "title": "Product walkthrough"},
			{"date": "week 4", "channel": "email", "content_type": "nurture", "title": "Recap and CTA"}
		],
		"duration_weeks": 4
	}`,
}

// Invoke returns the canned response for the prompt's stage.
func (MockClient) Invoke(_ context.Context, p Prompt) (string, error) {
	if resp, ok := mockResponses[p.Stage]; ok {
		return resp, nil
	}
	return "", ErrServiceUnavailable
}
