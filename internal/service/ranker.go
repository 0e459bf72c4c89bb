package service

import (
	"cmp"
	"slices"

	"github.com/expertshelf/hub/internal/models"
)

// RankTopics scores every indexed topic against profile and returns those not in
// exclude, by score descending then topic id ascending.
func RankTopics(idx *TopicIndex, profile []float32, exclude map[int64]struct{}) []models.ScoredTopic {
	if idx == nil || idx.Len() == 0 {
		return []models.ScoredTopic{}
	}

	scores := idx.Scores(profile)
	ranked := make([]models.ScoredTopic, 0, len(scores))

	for pos, score := range scores {
		id := idx.TopicAt(pos).ID
		if _, skip := exclude[id]; skip {
			continue
		}

		ranked = append(ranked, models.ScoredTopic{TopicID: id, Score: score})
	}

	slices.SortFunc(ranked, func(a, b models.ScoredTopic) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}

		return cmp.Compare(a.TopicID, b.TopicID)
	})

	return ranked
}
