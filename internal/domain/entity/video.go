package entity

import (
	"encoding/json"
	"time"
)

// SampledFrame is a decoded frame persisted as an image file. Index is the
// position of the frame in the source video, counting from zero.
type SampledFrame struct {
	Index int
	Path  string
}

// DetectionResult is the raw output of the detection model for one frame.
// DetectionScores is kept undecoded because its shape depends on the model
// export: a flat array, a batch-nested array, or something unusable.
type DetectionResult struct {
	DetectionScores json.RawMessage `json:"detection_scores"`
}

// ImageBatch is a single preprocessed image in NHWC layout with a batch
// dimension of one. Data holds Height*Width*Channels values in [0,1].
type ImageBatch struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// ProcessedVideo is the persisted at-most-once marker for an input filename.
type ProcessedVideo struct {
	Filename          string
	Processed         bool
	ShortenedVideoURL string
	RunID             string
	FrameCount        int
	SelectedFrames    []int
	UpdatedAt         time.Time
}
