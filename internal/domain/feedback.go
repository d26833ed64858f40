package domain

import "time"

// InteractionType classifies a user reaction to a suggestion.
type InteractionType string

const (
	InteractionEdit       InteractionType = "edit"
	InteractionApprove    InteractionType = "approve"
	InteractionRegenerate InteractionType = "regenerate"
	InteractionReject     InteractionType = "reject"
)

// ValidInteraction reports whether t is a known interaction type.
func ValidInteraction(t InteractionType) bool {
	switch t {
	case InteractionEdit, InteractionApprove, InteractionRegenerate, InteractionReject:
		return true
	}
	return false
}

// DeriveInteraction maps a 1-5 feedback score to an interaction type.
// Scores of 4 and above count as approval.
func DeriveInteraction(score int) InteractionType {
	if score >= 4 {
		return InteractionApprove
	}
	return InteractionReject
}

// FeedbackContext tags which agent, session, and field produced the
// suggestion the user reacted to.
type FeedbackContext struct {
	AgentType StageType `json:"agent_type"`
	SessionID string    `json:"session_id,omitempty"`
	Field     string    `json:"field,omitempty"`
}

// FeedbackEvent is one recorded user reaction. Events are append-only and
// never mutated.
type FeedbackEvent struct {
	ID                 string          `json:"id"`
	Type               InteractionType `json:"interaction_type"`
	OriginalSuggestion string          `json:"original_suggestion"`
	UserModification   string          `json:"user_modification,omitempty"`
	Context            FeedbackContext `json:"context_data"`
	Score              *int            `json:"feedback_score,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Outcome converts the interaction into a learning signal in [0,1].
// Edits and regenerations are a partial signal: the suggestion was worth
// refining rather than discarding.
func (e *FeedbackEvent) Outcome() float64 {
	switch e.Type {
	case InteractionApprove:
		return 1
	case InteractionReject:
		return 0
	default:
		return 0.5
	}
}
