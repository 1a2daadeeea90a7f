package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/port"
	"go.uber.org/zap"
)

type Decoder struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *zap.Logger
}

func NewDecoder(ffmpegBin, ffprobeBin string, logger *zap.Logger) *Decoder {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &Decoder{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin, logger: logger}
}

type VideoInfo struct {
	Width     int
	Height    int
	FrameRate float64
	Duration  float64
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's geometry and frame rate.
func (d *Decoder) Probe(ctx context.Context, videoPath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate:format=duration",
		"-of", "json",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*VideoInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, errors.New("no video stream")
	}

	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}

	rate := ParseFrameRate(s.AvgFrameRate)
	if rate <= 0 {
		rate = ParseFrameRate(s.RFrameRate)
	}
	duration, _ := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)

	return &VideoInfo{Width: s.Width, Height: s.Height, FrameRate: rate, Duration: duration}, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25". It
// returns 0 for anything it cannot interpret.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}

// Open starts ffmpeg decoding videoPath to raw RGB frames on a pipe. Every
// decoded frame is emitted exactly once and in order.
func (d *Decoder) Open(ctx context.Context, videoPath string) (port.FrameStream, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, err
	}

	info, err := d.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.ffmpegBin,
		"-v", "error",
		"-i", videoPath,
		"-map", "0:v:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	stream := &frameStream{
		cmd:    cmd,
		reader: bufio.NewReaderSize(stdout, info.Width*info.Height*3),
		info:   *info,
		logger: d.logger,
	}
	cmd.Stderr = &stream.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	d.logger.Debug("decoding video",
		zap.String("video", videoPath),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FrameRate),
		zap.Float64("duration", info.Duration),
	)
	return stream, nil
}

// frameStream reads raw frames from a running ffmpeg. stderr is written by an
// exec goroutine and may only be read after wait has returned.
type frameStream struct {
	cmd     *exec.Cmd
	reader  *bufio.Reader
	info    VideoInfo
	stderr  bytes.Buffer
	waited  bool
	waitErr error
	closed  bool
	logger  *zap.Logger
}

func (s *frameStream) FrameRate() float64 { return s.info.FrameRate }

// Next returns the next decoded frame, or io.EOF once ffmpeg has finished
// cleanly. A truncated frame or a failed ffmpeg exit is reported with its
// diagnostic output.
func (s *frameStream) Next() (image.Image, error) {
	w, h := s.info.Width, s.info.Height
	buf := make([]byte, w*h*3)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		waitErr := s.wait()
		if errors.Is(err, io.EOF) && waitErr == nil {
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			err = waitErr
		}
		return nil, fmt.Errorf("read frame: %w, output: %s", err, strings.TrimSpace(s.stderr.String()))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

func (s *frameStream) wait() error {
	if !s.waited {
		s.waited = true
		s.waitErr = s.cmd.Wait()
	}
	return s.waitErr
}

// Close stops ffmpeg if it is still running and reaps the process.
func (s *frameStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.waited && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if err := s.wait(); err != nil {
		s.logger.Debug("ffmpeg decoder exited", zap.Error(err))
	}
	return nil
}
