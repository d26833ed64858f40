package domain

import (
	"fmt"
	"time"
)

// SessionStatus tracks the lifecycle of a generation session.
type SessionStatus string

const (
	StatusDraft      SessionStatus = "draft"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// CampaignBrief is the user-supplied input to a session. It is immutable
// once the session starts.
type CampaignBrief struct {
	Industry       string            `json:"industry"`
	TargetAudience string            `json:"target_audience"`
	Budget         string            `json:"budget,omitempty"`
	Goals          []string          `json:"goals"`
	Timeline       string            `json:"timeline,omitempty"`
	Channels       []string          `json:"channels,omitempty"`
	KeyMessages    []string          `json:"key_messages,omitempty"`
	SuccessMetrics []string          `json:"success_metrics,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Validate checks the minimum fields a brief needs for any stage to run.
func (b *CampaignBrief) Validate() error {
	if b.Industry == "" {
		return &ValidationError{Msg: "brief is missing industry"}
	}
	if b.TargetAudience == "" {
		return &ValidationError{Msg: "brief is missing target_audience"}
	}
	if len(b.Goals) == 0 {
		return &ValidationError{Msg: "brief needs at least one goal"}
	}
	return nil
}

// GeneratedCampaign accumulates one artifact per completed stage.
type GeneratedCampaign struct {
	AudienceInsights  *AudienceInsights  `json:"audience_insights,omitempty"`
	ChannelStrategy   *ChannelStrategy   `json:"channel_strategy,omitempty"`
	MessagingStrategy *MessagingStrategy `json:"messaging_strategy,omitempty"`
	ContentCalendar   *ContentCalendar   `json:"content_calendar,omitempty"`
}

// Has reports whether the artifact for the given stage is present.
func (c *GeneratedCampaign) Has(s StageType) bool {
	switch s {
	case StageAudience:
		return c.AudienceInsights != nil
	case StageChannel:
		return c.ChannelStrategy != nil
	case StageMessaging:
		return c.MessagingStrategy != nil
	case StageContentCalendar:
		return c.ContentCalendar != nil
	}
	return false
}

// Apply sets the field corresponding to the artifact's stage. A later
// regeneration replaces the field; historical artifacts live in the
// interaction history.
func (c *GeneratedCampaign) Apply(a *StageArtifact) error {
	switch a.Stage {
	case StageAudience:
		c.AudienceInsights = a.AudienceInsights
	case StageChannel:
		c.ChannelStrategy = a.ChannelStrategy
	case StageMessaging:
		c.MessagingStrategy = a.MessagingStrategy
	case StageContentCalendar:
		c.ContentCalendar = a.ContentCalendar
	default:
		return fmt.Errorf("apply artifact: unknown stage %q", a.Stage)
	}
	return nil
}

// InteractionEntry is one append-only record of a stage execution.
type InteractionEntry struct {
	Stage     StageType     `json:"stage"`
	Timestamp time.Time     `json:"timestamp"`
	Artifact  StageArtifact `json:"artifact"`
}

// Session is the unit of pipeline work: a brief, the accumulated campaign,
// and the full execution log. Owned by the orchestrator.
type Session struct {
	ID        string             `json:"id"`
	Status    SessionStatus      `json:"status"`
	Brief     CampaignBrief      `json:"brief"`
	Campaign  GeneratedCampaign  `json:"generated_campaign"`
	History   []InteractionEntry `json:"interaction_history"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
