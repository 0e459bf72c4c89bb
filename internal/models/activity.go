package models

import (
	"fmt"
	"time"
)

// ActivityKind is the kind of a user activity event.
type ActivityKind string

// Activity kinds recorded by the bot.
const (
	ActivityStartBot                ActivityKind = "start_bot"
	ActivityViewedExpertContent     ActivityKind = "viewed_expert_content"
	ActivityRequestedRecommendation ActivityKind = "requested_recommendation"
	ActivitySubscribe               ActivityKind = "subscribe"
	ActivityUnsubscribe             ActivityKind = "unsubscribe"
	ActivityListSubscriptions       ActivityKind = "list_subscriptions"
)

// ActivityKinds returns all valid kinds, in declaration order.
func ActivityKinds() []ActivityKind {
	return []ActivityKind{
		ActivityStartBot,
		ActivityViewedExpertContent,
		ActivityRequestedRecommendation,
		ActivitySubscribe,
		ActivityUnsubscribe,
		ActivityListSubscriptions,
	}
}

// IsValid reports whether k is a known kind.
func (k ActivityKind) IsValid() bool {
	for _, known := range ActivityKinds() {
		if k == known {
			return true
		}
	}

	return false
}

// ParseActivityKind converts s to an ActivityKind.
func ParseActivityKind(s string) (ActivityKind, error) {
	k := ActivityKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid activity kind: %q", s)
	}

	return k, nil
}

// ActivityEvent is one row of the append-only activity log.
type ActivityEvent struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"user_id"`
	TopicID   *int64       `json:"topic_id,omitempty"`
	Kind      ActivityKind `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

// CreateActivityEventRequest is the body for POST /v1/activity.
type CreateActivityEventRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	Kind    string `json:"kind" validate:"required,activity_kind"`
	TopicID *int64 `json:"topic_id,omitempty" validate:"omitempty,gt=0"`
}

// TopicEvent is a topic-bearing activity event as read by the recommender.
type TopicEvent struct {
	TopicID    int64
	OccurredAt time.Time
}
