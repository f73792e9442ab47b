package model

import "time"

const BlockTypeFocus = "focus"

// FocusBlockSuggestion is a proposed focus block. It is created by the
// packer and handed to the suggestion sink unchanged.
type FocusBlockSuggestion struct {
	Title         string    `json:"title"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	BlockType     string    `json:"blockType"`
	RelatedTaskID *string   `json:"relatedTaskId"`
	Notes         string    `json:"notes"`
}

func (s FocusBlockSuggestion) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
