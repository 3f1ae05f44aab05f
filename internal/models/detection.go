package models

import (
	"math"
	"time"
)

// Emotion is one category of the closed emotion set
type Emotion string

const (
	EmotionAngry    Emotion = "angry"
	EmotionDisgust  Emotion = "disgust"
	EmotionFear     Emotion = "fear"
	EmotionHappy    Emotion = "happy"
	EmotionSad      Emotion = "sad"
	EmotionSurprise Emotion = "surprise"
	EmotionNeutral  Emotion = "neutral"
)

// Emotions lists the categories in enumeration order. Dominant ties resolve to the earliest entry.
var Emotions = []Emotion{
	EmotionAngry,
	EmotionDisgust,
	EmotionFear,
	EmotionHappy,
	EmotionSad,
	EmotionSurprise,
	EmotionNeutral,
}

// IsValid checks if the emotion belongs to the closed set
func (e Emotion) IsValid() bool {
	for _, known := range Emotions {
		if e == known {
			return true
		}
	}
	return false
}

// Scores maps each emotion category to a score
type Scores map[Emotion]float64

// Sum returns the total of all known categories
func (s Scores) Sum() float64 {
	total := 0.0
	for _, e := range Emotions {
		total += s[e]
	}
	return total
}

// Dominant returns the category with the highest score, ties broken by enumeration order
func (s Scores) Dominant() Emotion {
	best := Emotions[0]
	bestScore := math.Inf(-1)
	for _, e := range Emotions {
		if v, ok := s[e]; ok && v > bestScore {
			best, bestScore = e, v
		}
	}
	return best
}

// Percent converts normalized scores into whole percentages (truncated)
func (s Scores) Percent() map[Emotion]int {
	out := make(map[Emotion]int, len(Emotions))
	for _, e := range Emotions {
		out[e] = int(s[e] * 100)
	}
	return out
}

// Clone returns a copy of the scores
func (s Scores) Clone() Scores {
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Box is a face bounding box in pixel coordinates
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Face is one analyzer detection
type Face struct {
	Box        Box     `json:"box"`
	Scores     Scores  `json:"scores"`
	Dominant   Emotion `json:"dominant"`
	Confidence float64 `json:"confidence,omitempty"`
}

// FallbackKind distinguishes degraded results from genuine analysis
type FallbackKind string

const (
	FallbackNone          FallbackKind = ""
	FallbackAnalyzerError FallbackKind = "analyzer_error"
	FallbackNoScores      FallbackKind = "no_scores"
	FallbackNoFace        FallbackKind = "no_face"
	FallbackInternalError FallbackKind = "internal_error"
)

// DetectionResult is produced once per detection cycle
type DetectionResult struct {
	ID             string          `json:"id"`
	CameraID       int64           `json:"camera_id"`
	Dominant       Emotion         `json:"dominant_emotion"`
	Scores         Scores          `json:"emotion"`
	Percent        map[Emotion]int `json:"emotion_percent"`
	Faces          []Face          `json:"faces"`
	Fallback       FallbackKind    `json:"fallback,omitempty"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	CreatedAt      time.Time       `json:"timestamp"`

	// Annotated frame, persisted separately
	Annotated *Frame `json:"-"`
}

// IsFallback reports whether the scores were substituted rather than analyzed
func (r *DetectionResult) IsFallback() bool {
	return r.Fallback != FallbackNone
}

// ResultEvent is the payload fanned out to external sinks
type ResultEvent struct {
	ResultID      string          `json:"result_id"`
	CameraID      int64           `json:"camera_id"`
	Dominant      Emotion         `json:"dominant_emotion"`
	Scores        Scores          `json:"emotion"`
	Percent       map[Emotion]int `json:"emotion_percent"`
	FaceCount     int             `json:"face_count"`
	Fallback      FallbackKind    `json:"fallback,omitempty"`
	RawPath       string          `json:"image_path,omitempty"`
	ProcessedPath string          `json:"processed_image_path,omitempty"`
	ResultPath    string          `json:"result_path,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	WorkerID      string          `json:"worker_id"`
}

// HistoryRecord is one persisted analysis
type HistoryRecord struct {
	ID            int64        `json:"id"`
	CameraID      int64        `json:"camera_id"`
	ResultID      string       `json:"result_id"`
	ImagePath     string       `json:"image_path"`
	ProcessedPath string       `json:"processed_image_path"`
	ResultPath    string       `json:"result_path"`
	Dominant      Emotion      `json:"dominant_emotion"`
	Scores        Scores       `json:"emotion"`
	Fallback      FallbackKind `json:"fallback,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// HistoryFilter selects history rows, newest first
type HistoryFilter struct {
	CameraID int64 // zero means all cameras
	Limit    int
	Offset   int
}

// ArtifactPaths locates the persisted artifacts of one detection
type ArtifactPaths struct {
	Raw       string `json:"image_path"`
	Annotated string `json:"processed_image_path"`
	Result    string `json:"result_path"`
}
