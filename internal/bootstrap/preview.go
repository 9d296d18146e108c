package bootstrap

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

const previewInterval = 100 * time.Millisecond

// previewFrame is the payload of a scan:frame push.
type previewFrame struct {
	DataURL string `json:"dataUrl"`
}

// previewSurface pushes throttled JPEG previews of the live stream to the UI.
type previewSurface struct {
	emit     func(name string, data ...interface{})
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func newPreviewSurface(emit func(string, ...interface{}), interval time.Duration) *previewSurface {
	return &previewSurface{emit: emit, interval: interval, now: time.Now}
}

// Show emits frame unless one was emitted within the interval.
func (p *previewSurface) Show(frame image.Image) {
	p.mu.Lock()
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		p.mu.Unlock()
		return
	}
	p.last = now
	p.mu.Unlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 70}); err != nil {
		return
	}
	p.emit("scan:frame", previewFrame{
		DataURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

// Clear blanks the preview.
func (p *previewSurface) Clear() {
	p.mu.Lock()
	p.last = time.Time{}
	p.mu.Unlock()
	p.emit("scan:frame", previewFrame{})
}
