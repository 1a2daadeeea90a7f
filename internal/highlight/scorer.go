package highlight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strconv"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const (
	DefaultModelInputWidth  = 512
	DefaultModelInputHeight = 512
)

var errNotSequence = errors.New("detection scores are not a sequence")

type Scorer struct {
	detector port.ObjectDetector
	width    int
	height   int
	logger   *zap.Logger
}

func NewScorer(detector port.ObjectDetector, width, height int, logger *zap.Logger) *Scorer {
	if width <= 0 {
		width = DefaultModelInputWidth
	}
	if height <= 0 {
		height = DefaultModelInputHeight
	}
	return &Scorer{detector: detector, width: width, height: height, logger: logger}
}

// Score returns the highest detection confidence found in the frame, in
// [0,1]. Unusable model output scores 0. Only a frame that cannot be loaded
// or a detector call that cannot complete produce an error.
func (s *Scorer) Score(ctx context.Context, framePath string) (float64, error) {
	img, err := loadImage(framePath)
	if err != nil {
		return 0, &entity.ModelInvocationError{FramePath: framePath, Err: err}
	}

	result, err := s.detector.Detect(ctx, Preprocess(img, s.width, s.height))
	if err != nil {
		return 0, &entity.ModelInvocationError{FramePath: framePath, Err: err}
	}

	confidences, err := NormalizeConfidences(result.DetectionScores)
	if err != nil {
		s.logger.Warn("unusable detection scores, scoring frame as zero",
			zap.String("frame", framePath), zap.Error(err))
		return 0, nil
	}
	return MaxConfidence(confidences), nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Preprocess converts img to RGB at width x height and scales intensities to
// [0,1], laid out as a batch of one in NHWC order.
func Preprocess(img image.Image, width, height int) entity.ImageBatch {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, 0, width*height*3)
	for y := 0; y < height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			data = append(data,
				float32(px[0])/255,
				float32(px[1])/255,
				float32(px[2])/255,
			)
		}
	}

	return entity.ImageBatch{Height: height, Width: width, Channels: 3, Data: data}
}

// NormalizeConfidences flattens a raw detection_scores value into a list of
// scalars.
//
// Accepted input is a JSON array whose elements are numbers, numeric strings,
// or arrays of those (one level of nesting, as produced by batched model
// exports). null or an absent value yields an empty list. Any other shape, or
// any element that is not a finite number, is an error.
func NormalizeConfidences(raw json.RawMessage) ([]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var outer []json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, errNotSequence
	}

	scores := make([]float64, 0, len(outer))
	for _, elem := range outer {
		elem = bytes.TrimSpace(elem)
		if len(elem) > 0 && elem[0] == '[' {
			var inner []json.RawMessage
			if err := json.Unmarshal(elem, &inner); err != nil {
				return nil, errNotSequence
			}
			for _, v := range inner {
				f, err := coerceScalar(v)
				if err != nil {
					return nil, err
				}
				scores = append(scores, f)
			}
			continue
		}

		f, err := coerceScalar(elem)
		if err != nil {
			return nil, err
		}
		scores = append(scores, f)
	}
	return scores, nil
}

func coerceScalar(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)

	var text string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("coerce %s: %w", raw, err)
		}
	} else {
		text = string(raw)
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("coerce %s: not a number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("coerce %s: not finite", raw)
	}
	return f, nil
}

// MaxConfidence reduces confidences to their maximum clamped to [0,1], or 0
// for an empty list.
func MaxConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	best := confidences[0]
	for _, c := range confidences[1:] {
		if c > best {
			best = c
		}
	}
	return math.Min(1, math.Max(0, best))
}
