package domain

import "time"

// LearnedPattern is aggregate learning state for one agent type, distilled
// from historical user feedback and supplied as a prior to future stage
// runs. UsageCount only ever increases; ConfidenceScore is recomputed from
// feedback, never reset.
type LearnedPattern struct {
	ID              string    `json:"id"`
	AgentType       StageType `json:"agent_type"`
	PatternData     string    `json:"pattern_data"`
	UsageCount      int       `json:"usage_count"`
	SuccessRate     float64   `json:"success_rate"`
	ConfidenceScore float64   `json:"confidence_score"`
	LastUpdated     time.Time `json:"last_updated"`
	CreatedAt       time.Time `json:"created_at"`
}
