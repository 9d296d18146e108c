package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"sync"

	"battery-passport/internal/scan"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

const maxFrameSize = 8 << 20

// splitJPEG is a bufio.SplitFunc yielding whole JPEG images from a byte
// stream. Bytes outside an SOI..EOI pair are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegStart)
	if start < 0 {
		if !atEOF && len(data) > 0 && data[len(data)-1] == 0xFF {
			return len(data) - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegStart) + end + len(jpegEnd)
	return stop, data[start:stop], nil
}

// mjpegStream keeps the latest JPEG frame read from an MJPEG byte stream.
type mjpegStream struct {
	proc *process

	mu      sync.Mutex
	latest  []byte
	readErr error

	fresh     chan struct{}
	ready     chan struct{}
	done      chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// newMJPEGStream starts reading frames from proc's stdout.
func newMJPEGStream(proc *process) *mjpegStream {
	s := &mjpegStream{
		proc:  proc,
		fresh: make(chan struct{}, 1),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.read(proc.stdout)
	return s
}

// read splits frames until the source ends.
func (s *mjpegStream) read(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	scanner.Split(splitJPEG)
	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)

		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })
		select {
		case s.fresh <- struct{}{}:
		default:
		}
	}

	s.mu.Lock()
	s.readErr = scanner.Err()
	s.mu.Unlock()
}

// waitFirst blocks until the first frame arrives or the source fails.
func (s *mjpegStream) waitFirst(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return s.endErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Frame returns the newest frame not yet returned, decoded.
func (s *mjpegStream) Frame(ctx context.Context) (image.Image, error) {
	select {
	case <-s.fresh:
	case <-s.done:
		select {
		case <-s.fresh:
		default:
			return nil, s.endErr()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	data := s.latest
	s.mu.Unlock()

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Close stops the capture process and waits for the reader and the process
// to exit.
func (s *mjpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.proc.stop(s.done)
	})
	return s.closeErr
}

// endErr describes why the source stopped producing frames.
func (s *mjpegStream) endErr() error {
	s.mu.Lock()
	readErr := s.readErr
	s.mu.Unlock()

	detail := s.proc.stderrTail()
	switch {
	case readErr != nil && !errors.Is(readErr, io.ErrClosedPipe) && !errors.Is(readErr, os.ErrClosed):
		return fmt.Errorf("%w: %v", scan.ErrStreamEnded, readErr)
	case detail != "":
		return fmt.Errorf("%w: %s", scan.ErrStreamEnded, detail)
	default:
		return scan.ErrStreamEnded
	}
}
