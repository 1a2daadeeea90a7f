package httpapi

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalPublisher exposes summaries written to the output directory through
// the /output route of this server.
type LocalPublisher struct {
	baseURL string
}

func NewLocalPublisher(baseURL string) *LocalPublisher {
	return &LocalPublisher{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *LocalPublisher) Publish(_ context.Context, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("publish summary: %w", err)
	}
	return p.baseURL + "/output/" + url.PathEscape(filepath.Base(localPath)), nil
}
