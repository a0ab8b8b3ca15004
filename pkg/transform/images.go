package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

var imageLink = regexp.MustCompile(`!\[.*?\]\(/api/v1/files/([a-f0-9\-]+)/content\)`)

// FileFetcher downloads upstream file content.
type FileFetcher interface {
	FileContent(ctx context.Context, auth upstream.Auth, fileID string) ([]byte, error)
}

// ImageLocalizer copies upstream images to a local directory and rewrites
// their links.
type ImageLocalizer struct {
	fetcher FileFetcher
	dir     string
	domain  string
	timeout time.Duration
	metrics *metrics.Collector
	logger  *slog.Logger
}

// LocalizerConfig configures an ImageLocalizer.
type LocalizerConfig struct {
	// Dir is where images are stored.
	Dir string

	// Domain prefixes rewritten links, e.g. "https://api.example.com".
	Domain string

	// Timeout bounds a single download. Zero means 30s.
	Timeout time.Duration
}

// NewImageLocalizer creates an ImageLocalizer. The directory is created if
// missing.
func NewImageLocalizer(fetcher FileFetcher, cfg LocalizerConfig, collector *metrics.Collector) (*ImageLocalizer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files directory: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ImageLocalizer{
		fetcher: fetcher,
		dir:     cfg.Dir,
		domain:  strings.TrimRight(cfg.Domain, "/"),
		timeout: cfg.Timeout,
		metrics: collector,
		logger:  slog.Default().With("component", "transform.images"),
	}, nil
}

// Dir returns the storage directory.
func (l *ImageLocalizer) Dir() string {
	return l.dir
}

// Rewrite replaces every upstream image link in content with its local
// link. seen maps file ids already handled in this request to the link
// that replaced them; it is updated in place so each image is fetched at
// most once per request. A failed download keeps the upstream link.
func (l *ImageLocalizer) Rewrite(ctx context.Context, auth upstream.Auth, content string, seen map[string]string) string {
	if !strings.Contains(content, "![") || !strings.Contains(content, "/api/v1/files/") {
		return content
	}

	return imageLink.ReplaceAllStringFunc(content, func(match string) string {
		id := imageLink.FindStringSubmatch(match)[1]
		link, ok := seen[id]
		if !ok {
			link = l.localize(ctx, auth, id)
			seen[id] = link
		}
		return strings.Replace(match, upstreamPath(id), link, 1)
	})
}

// localize makes sure the file exists locally and returns the link to use.
func (l *ImageLocalizer) localize(ctx context.Context, auth upstream.Auth, id string) string {
	path := filepath.Join(l.dir, id)

	if info, err := os.Stat(path); err == nil {
		if info.Size() > 0 {
			l.metrics.RecordImageDownload("cached")
			return l.localLink(id)
		}
		// Leftover from an interrupted download.
		_ = os.Remove(path)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	data, err := l.fetcher.FileContent(ctx, auth, id)
	if err == nil {
		err = writeFile(l.dir, path, data)
	}
	if err != nil {
		l.metrics.RecordImageDownload("failure")
		l.logger.WarnContext(ctx, "failed to localize image, keeping upstream link", "file_id", id, "error", err)
		return upstreamPath(id)
	}

	l.metrics.RecordImageDownload("downloaded")
	l.logger.DebugContext(ctx, "image localized", "file_id", id, "bytes", len(data))
	return l.localLink(id)
}

func (l *ImageLocalizer) localLink(id string) string {
	return l.domain + "/files/" + id
}

func upstreamPath(id string) string {
	return "/api/v1/files/" + id + "/content"
}

// writeFile writes data to path through a temporary file in dir.
func writeFile(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
