package detector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"go.uber.org/zap"
)

// Client calls an object-detection model exposed through the TensorFlow
// Serving REST predict API. It is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type ClientConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		endpoint:   fmt.Sprintf("%s/v1/models/%s:predict", base, cfg.Model),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// predictResponse covers both the row ("predictions") and columnar
// ("outputs") response formats.
type predictResponse struct {
	Predictions []map[string]json.RawMessage `json:"predictions"`
	Outputs     map[string]json.RawMessage   `json:"outputs"`
	Error       string                       `json:"error"`
}

func (c *Client) Detect(ctx context.Context, batch entity.ImageBatch) (entity.DetectionResult, error) {
	body, err := encodeInstances(batch)
	if err != nil {
		return entity.DetectionResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return entity.DetectionResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.DetectionResult{}, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.DetectionResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return entity.DetectionResult{}, fmt.Errorf("model returned %d: %s", resp.StatusCode, truncate(data, 512))
	}

	var pr predictResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		// The call completed; an unreadable body is malformed output, not a
		// failed invocation.
		c.logger.Warn("unparseable model response", zap.Error(err))
		return entity.DetectionResult{}, nil
	}
	if pr.Error != "" {
		return entity.DetectionResult{}, fmt.Errorf("model error: %s", pr.Error)
	}

	switch {
	case len(pr.Predictions) > 0:
		return entity.DetectionResult{DetectionScores: pr.Predictions[0]["detection_scores"]}, nil
	case pr.Outputs != nil:
		return entity.DetectionResult{DetectionScores: pr.Outputs["detection_scores"]}, nil
	}
	return entity.DetectionResult{}, nil
}

// encodeInstances writes {"instances": [HxWxC]} without building the nested
// slices in memory.
func encodeInstances(batch entity.ImageBatch) ([]byte, error) {
	if want := batch.Height * batch.Width * batch.Channels; len(batch.Data) != want {
		return nil, fmt.Errorf("batch has %d values, want %d", len(batch.Data), want)
	}

	var buf bytes.Buffer
	buf.Grow(len(batch.Data) * 8)
	w := bufio.NewWriter(&buf)
	w.WriteString(`{"instances":[[`)
	i := 0
	for y := 0; y < batch.Height; y++ {
		if y > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('[')
		for x := 0; x < batch.Width; x++ {
			if x > 0 {
				w.WriteByte(',')
			}
			w.WriteByte('[')
			for ch := 0; ch < batch.Channels; ch++ {
				if ch > 0 {
					w.WriteByte(',')
				}
				w.WriteString(strconv.FormatFloat(float64(batch.Data[i]), 'g', 6, 32))
				i++
			}
			w.WriteByte(']')
		}
		w.WriteByte(']')
	}
	w.WriteString(`]]}`)
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
