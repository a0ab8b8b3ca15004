package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// ErrUnavailable is returned when no catalog has been loaded.
var ErrUnavailable = errors.New("model catalog unavailable")

// Source fetches the raw catalog from upstream.
type Source interface {
	Models(ctx context.Context, auth upstream.Auth) ([]byte, error)
}

// Catalog holds the model list document.
type Catalog struct {
	path   string
	logger *slog.Logger

	mu          sync.RWMutex
	raw         []byte
	imageModels map[string]bool
}

// NewCatalog creates an empty catalog backed by path.
func NewCatalog(path string) *Catalog {
	return &Catalog{
		path:   path,
		logger: slog.Default().With("component", "models"),
	}
}

// Path returns the backing file.
func (c *Catalog) Path() string {
	return c.path
}

// Load reads the backing file. A missing file leaves the catalog empty and
// returns ErrUnavailable.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s does not exist", ErrUnavailable, c.path)
	}
	if err != nil {
		return fmt.Errorf("failed to read model catalog: %w", err)
	}
	if err := c.set(data); err != nil {
		return err
	}

	c.logger.Debug("model catalog loaded", "path", c.path, "image_models", c.imageCount())
	return nil
}

// Raw returns the catalog document.
func (c *Catalog) Raw() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.raw == nil {
		return nil, ErrUnavailable
	}
	return c.raw, nil
}

// IsImageModel reports whether the model with the given id or name lists
// "image" among its output modalities.
func (c *Catalog) IsImageModel(model string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.imageModels[model]
}

// Refresh fetches the catalog from src and stores it.
func (c *Catalog) Refresh(ctx context.Context, src Source, auth upstream.Auth) error {
	data, err := src.Models(ctx, auth)
	if err != nil {
		return fmt.Errorf("failed to fetch model catalog: %w", err)
	}
	if err := c.Store(data); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "model catalog refreshed", "models", gjson.GetBytes(data, "data.#").Int())
	return nil
}

// Store validates data, writes it to the backing file and makes it current.
func (c *Catalog) Store(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("model catalog is not valid JSON")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to write model catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model catalog: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace model catalog: %w", err)
	}

	return c.set(data)
}

func (c *Catalog) set(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("model catalog %s is not valid JSON", c.path)
	}

	images := make(map[string]bool)
	gjson.GetBytes(data, "data").ForEach(func(_, model gjson.Result) bool {
		isImage := false
		model.Get("info.meta.modalities.output").ForEach(func(_, out gjson.Result) bool {
			isImage = out.String() == "image"
			return !isImage
		})
		if isImage {
			for _, key := range []string{"id", "name"} {
				if v := model.Get(key).String(); v != "" {
					images[v] = true
				}
			}
		}
		return true
	})

	c.mu.Lock()
	c.raw = data
	c.imageModels = images
	c.mu.Unlock()
	return nil
}

func (c *Catalog) imageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.imageModels)
}
