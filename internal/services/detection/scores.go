package detection

import (
	"math"

	"emotion-worker-go/internal/models"
)

// defaultScores is substituted whenever the raw scores sum to zero
func defaultScores() models.Scores {
	return models.Scores{
		models.EmotionAngry:    0.1,
		models.EmotionDisgust:  0.1,
		models.EmotionFear:     0.1,
		models.EmotionHappy:    0.1,
		models.EmotionSad:      0.1,
		models.EmotionSurprise: 0.1,
		models.EmotionNeutral:  0.4,
	}
}

// internalErrorScores is the fixed result for a cycle that could not run at all
func internalErrorScores() models.Scores {
	return models.Scores{
		models.EmotionAngry:    0.15,
		models.EmotionDisgust:  0.05,
		models.EmotionFear:     0.05,
		models.EmotionHappy:    0.20,
		models.EmotionSad:      0.15,
		models.EmotionSurprise: 0.10,
		models.EmotionNeutral:  0.30,
	}
}

type scoreRange struct {
	lo, hi float64
}

var analyzerFallbackRanges = map[models.Emotion]scoreRange{
	models.EmotionHappy:    {0.10, 0.30},
	models.EmotionSad:      {0.05, 0.20},
	models.EmotionAngry:    {0.05, 0.20},
	models.EmotionSurprise: {0.05, 0.20},
	models.EmotionFear:     {0.05, 0.15},
	models.EmotionDisgust:  {0.05, 0.15},
	models.EmotionNeutral:  {0.20, 0.40},
}

var noFaceFallbackRanges = map[models.Emotion]scoreRange{
	models.EmotionHappy:    {0.10, 0.20},
	models.EmotionSad:      {0.05, 0.15},
	models.EmotionAngry:    {0.05, 0.15},
	models.EmotionSurprise: {0.05, 0.15},
	models.EmotionFear:     {0.05, 0.15},
	models.EmotionDisgust:  {0.05, 0.15},
	models.EmotionNeutral:  {0.30, 0.50},
}

// sanitize keeps only known categories with finite, non-negative values
func sanitize(raw models.Scores) models.Scores {
	out := make(models.Scores, len(models.Emotions))
	for _, e := range models.Emotions {
		v := raw[e]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			v = 0
		}
		out[e] = v
	}
	return out
}

// divideBySum scales scores to sum to one; a zero sum yields the default distribution
func divideBySum(raw models.Scores) models.Scores {
	s := sanitize(raw)
	total := s.Sum()
	if total <= 0 {
		return defaultScores()
	}
	for e, v := range s {
		s[e] = v / total
	}
	return s
}

// aggregateFaces takes the per-category maximum across faces
func aggregateFaces(faces []models.Face) models.Scores {
	agg := make(models.Scores, len(models.Emotions))
	for _, f := range faces {
		clean := sanitize(f.Scores)
		for _, e := range models.Emotions {
			if clean[e] > agg[e] {
				agg[e] = clean[e]
			}
		}
	}
	return agg
}
