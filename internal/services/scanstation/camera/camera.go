// Package camera provides frame sources for scan stations.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/louisbranch/attendmark/internal/services/scanstation/session"
)

// ErrNoFrame reports that no new frame is available yet.
var ErrNoFrame = errors.New("no new frame")

var frameExtensions = []string{".png", ".jpg", ".jpeg"}

// Directory treats image files dropped into a directory as camera frames.
// Each file is delivered once, in name order.
type Directory struct {
	Path string
}

// Open checks that the directory is readable and returns a camera over it.
func (d Directory) Open(ctx context.Context) (session.Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open frames dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open frames dir: %s is not a directory", d.Path)
	}
	return &directoryCamera{path: d.Path, seen: make(map[string]struct{})}, nil
}

type directoryCamera struct {
	path string

	mu     sync.Mutex
	seen   map[string]struct{}
	closed bool
}

func (c *directoryCamera) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("camera closed")
	}

	entries, err := os.ReadDir(c.path)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !slices.Contains(frameExtensions, strings.ToLower(filepath.Ext(name))) {
			continue
		}
		if _, ok := c.seen[name]; ok {
			continue
		}
		c.seen[name] = struct{}{}
		frame, err := decodeFile(filepath.Join(c.path, name))
		if err != nil {
			return nil, err
		}
		return frame, nil
	}
	return nil, ErrNoFrame
}

func (c *directoryCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()
	frame, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", filepath.Base(path), err)
	}
	return frame, nil
}

var _ session.CameraSource = Directory{}
