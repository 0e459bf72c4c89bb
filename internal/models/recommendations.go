package models

// ScoredTopic is a topic with its similarity to a user profile.
type ScoredTopic struct {
	TopicID int64   `json:"topic_id"`
	Score   float64 `json:"score"`
}

// RecommendedItem is a sampled content item as presented to the user.
type RecommendedItem struct {
	ContributorName string `json:"contributor_name"`
	ContributorRole string `json:"contributor_role"`
	Title           string `json:"title"`
	Description     string `json:"description"`
}

// RecommendationGroup is the sampled items of one topic.
type RecommendationGroup struct {
	TopicID       int64             `json:"topic_id"`
	BroadLabel    string            `json:"broad_label"`
	SpecificLabel string            `json:"specific_label"`
	Items         []RecommendedItem `json:"items"`
}

// RecommendationsQuery is the query string of GET /v1/users/{user_id}/recommendations.
type RecommendationsQuery struct {
	TopK int `form:"topK" validate:"omitempty,min=1,max=100"`
}

// RecommendationsResponse is the body of GET /v1/users/{user_id}/recommendations.
// An empty Data with InsufficientHistory set means the user has no usable history yet.
type RecommendationsResponse struct {
	Data                []RecommendationGroup `json:"data"`
	InsufficientHistory bool                  `json:"insufficient_history"`
}
