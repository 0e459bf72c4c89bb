package models

import (
	"time"
)

// Topic is a catalog topic. SpecificLabel is the text that gets embedded.
type Topic struct {
	ID            int64     `json:"id"`
	BroadLabel    string    `json:"broad_label"`
	SpecificLabel string    `json:"specific_label"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContentItem is one expert recommendation attached to a topic.
type ContentItem struct {
	ID              int64  `json:"id"`
	TopicID         int64  `json:"topic_id"`
	Title           string `json:"title"`
	ContributorName string `json:"contributor_name"`
	ContributorRole string `json:"contributor_role"`
	Description     string `json:"description"`
}

// CatalogRow is one row of a catalog import: a topic and one content item under it.
type CatalogRow struct {
	BroadLabel      string `validate:"required,no_null_bytes,max=255"`
	SpecificLabel   string `validate:"required,no_null_bytes,max=255"`
	ContributorName string `validate:"required,no_null_bytes,max=255"`
	ContributorRole string `validate:"omitempty,no_null_bytes,max=255"`
	Title           string `validate:"required,no_null_bytes,max=500"`
	Description     string `validate:"omitempty,no_null_bytes"`
}

// ImportSummary reports what a catalog import changed.
type ImportSummary struct {
	TopicsCreated int `json:"topics_created"`
	TopicsReused  int `json:"topics_reused"`
	ItemsCreated  int `json:"items_created"`
	ItemsSkipped  int `json:"items_skipped"`
}
