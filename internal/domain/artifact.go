package domain

import (
	"encoding/json"
	"strings"
)

// Persona is one audience persona produced by the audience stage.
type Persona struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PainPoints  []string `json:"pain_points,omitempty"`
	Motivations []string `json:"motivations,omitempty"`
}

// AudienceInsights is the audience stage artifact payload.
type AudienceInsights struct {
	Personas    []Persona `json:"personas"`
	Segments    []string  `json:"segments,omitempty"`
	KeyInsights []string  `json:"key_insights,omitempty"`
}

// ChannelMix is one channel allocation in the channel strategy.
type ChannelMix struct {
	Channel     string  `json:"channel"`
	BudgetShare float64 `json:"budget_share"`
	Rationale   string  `json:"rationale,omitempty"`
}

// ChannelStrategy is the channel stage artifact payload.
type ChannelStrategy struct {
	Channels       []ChannelMix `json:"channels"`
	PrimaryChannel string       `json:"primary_channel,omitempty"`
	Cadence        string       `json:"cadence,omitempty"`
}

// MessagingPillar is one messaging pillar with supporting proof points.
type MessagingPillar struct {
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	ProofPoints []string `json:"proof_points,omitempty"`
}

// MessagingStrategy is the messaging stage artifact payload.
type MessagingStrategy struct {
	Pillars      []MessagingPillar `json:"pillars"`
	Tone         string            `json:"tone,omitempty"`
	CallToAction string            `json:"call_to_action,omitempty"`
}

// CalendarEntry is one planned content item.
type CalendarEntry struct {
	Date        string `json:"date"`
	Channel     string `json:"channel"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ContentCalendar is the content-calendar stage artifact payload.
type ContentCalendar struct {
	Entries       []CalendarEntry `json:"entries"`
	DurationWeeks int             `json:"duration_weeks,omitempty"`
}

// StageArtifact is the structured output of one stage run. Exactly one
// payload pointer is set, matching Stage. Artifacts are immutable once
// produced; a regeneration yields a new artifact.
type StageArtifact struct {
	Stage      StageType `json:"stage"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`

	AudienceInsights  *AudienceInsights  `json:"audience_insights,omitempty"`
	ChannelStrategy   *ChannelStrategy   `json:"channel_strategy,omitempty"`
	MessagingStrategy *MessagingStrategy `json:"messaging_strategy,omitempty"`
	ContentCalendar   *ContentCalendar   `json:"content_calendar,omitempty"`
}

// DefaultConfidence is used when the generation service omits a confidence
// score.
const DefaultConfidence = 0.5

// ParseArtifact validates raw generation output against the expected shape
// for the stage. A shape mismatch returns a ParseError; malformed responses
// are not retried upstream since they tend to recur.
func ParseArtifact(stage StageType, raw string) (*StageArtifact, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, &ParseError{Stage: stage, Msg: "empty response"}
	}

	art := &StageArtifact{Stage: stage}
	var env struct {
		Confidence *float64 `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, &ParseError{Stage: stage, Msg: "response is not valid JSON", Err: err}
	}

	var payloadErr error
	switch stage {
	case StageAudience:
		var p AudienceInsights
		payloadErr = json.Unmarshal([]byte(body), &p)
		if payloadErr == nil && len(p.Personas) == 0 {
			return nil, &ParseError{Stage: stage, Msg: "audience response has no personas"}
		}
		art.AudienceInsights = &p
	case StageChannel:
		var p ChannelStrategy
		payloadErr = json.Unmarshal([]byte(body), &p)
		if payloadErr == nil && len(p.Channels) == 0 {
			return nil, &ParseError{Stage: stage, Msg: "channel response has no channel mix"}
		}
		art.ChannelStrategy = &p
	case StageMessaging:
		var p MessagingStrategy
		payloadErr = json.Unmarshal([]byte(body), &p)
		if payloadErr == nil && len(p.Pillars) == 0 {
			return nil, &ParseError{Stage: stage, Msg: "messaging response has no pillars"}
		}
		art.MessagingStrategy = &p
	case StageContentCalendar:
		var p ContentCalendar
		payloadErr = json.Unmarshal([]byte(body), &p)
		if payloadErr == nil && len(p.Entries) == 0 {
			return nil, &ParseError{Stage: stage, Msg: "calendar response has no entries"}
		}
		art.ContentCalendar = &p
	default:
		return nil, &ParseError{Stage: stage, Msg: "unknown stage"}
	}
	if payloadErr != nil {
		return nil, &ParseError{Stage: stage, Msg: "response does not match stage shape", Err: payloadErr}
	}

	art.Reasoning = env.Reasoning
	if env.Confidence == nil {
		art.Confidence = DefaultConfidence
	} else {
		art.Confidence = clamp01(*env.Confidence)
	}
	return art, nil
}

// stripCodeFence removes a surrounding markdown code fence, which chat
// models frequently add around JSON output.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
