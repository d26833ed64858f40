// Package domain defines the core entities of the campaign co-pilot pipeline.
package domain

import "fmt"

// StageType identifies one of the four ordered generation stages.
type StageType string

const (
	StageAudience        StageType = "audience"
	StageChannel         StageType = "channel"
	StageMessaging       StageType = "messaging"
	StageContentCalendar StageType = "content-calendar"
)

// StageOrder returns the fixed execution order of the pipeline.
func StageOrder() []StageType {
	return []StageType{StageAudience, StageChannel, StageMessaging, StageContentCalendar}
}

// stageUpstream declares the artifacts each stage requires before it may run.
var stageUpstream = map[StageType][]StageType{
	StageAudience:        {},
	StageChannel:         {StageAudience},
	StageMessaging:       {StageAudience, StageChannel},
	StageContentCalendar: {StageChannel, StageMessaging},
}

// ValidStage reports whether s names a known stage.
func ValidStage(s StageType) bool {
	_, ok := stageUpstream[s]
	return ok
}

// RequiredUpstream returns the stages whose artifacts must exist before
// the given stage may run.
func RequiredUpstream(s StageType) []StageType {
	return stageUpstream[s]
}

// MissingUpstream returns the required upstream stages whose artifacts are
// absent from the campaign. An empty result means the stage may run.
func MissingUpstream(c *GeneratedCampaign, s StageType) []StageType {
	var missing []StageType
	for _, up := range stageUpstream[s] {
		if !c.Has(up) {
			missing = append(missing, up)
		}
	}
	return missing
}

// ParseStage converts a route parameter into a StageType.
func ParseStage(s string) (StageType, error) {
	st := StageType(s)
	if !ValidStage(st) {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}
