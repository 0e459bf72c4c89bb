package models

import (
	"time"
)

// TopicEmbedding is a persisted vector for one topic under one model.
// Label is the text the vector was computed from; a changed label invalidates the row.
type TopicEmbedding struct {
	TopicID   int64
	Model     string
	Label     string
	Embedding []float32
	UpdatedAt time.Time
}

// TopicIndexStatus describes the in-memory topic index.
type TopicIndexStatus struct {
	Loaded     bool       `json:"loaded"`
	TopicCount int        `json:"topic_count"`
	Dimensions int        `json:"dimensions"`
	Model      string     `json:"model"`
	BuiltAt    *time.Time `json:"built_at,omitempty"`
}
