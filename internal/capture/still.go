package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"battery-passport/internal/scan"
)

// StillCamera serves decoded image files as a looping stream.
type StillCamera struct {
	paths []string
	open  func(name string) (*os.File, error)
}

// NewStillCamera creates a camera over image files.
func NewStillCamera(paths ...string) *StillCamera {
	return &StillCamera{paths: paths, open: os.Open}
}

// Open decodes every image up front.
func (c *StillCamera) Open(ctx context.Context) (scan.Stream, error) {
	if len(c.paths) == 0 {
		return nil, errors.New("no image files given")
	}

	frames := make([]image.Image, 0, len(c.paths))
	for _, path := range c.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := c.decode(path)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}

	return &stillStream{frames: frames}, nil
}

func (c *StillCamera) decode(path string) (image.Image, error) {
	f, err := c.open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// stillStream cycles through a fixed frame list.
type stillStream struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

// Frame returns the next image in order, wrapping around.
func (s *stillStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, scan.ErrStreamEnded
	}
	frame := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return frame, nil
}

// Close releases the frames.
func (s *stillStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.frames = nil
	return nil
}
