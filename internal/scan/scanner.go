package scan

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"battery-passport/internal/domain"
)

// DefaultFrameInterval approximates a 30fps display refresh.
const DefaultFrameInterval = 33 * time.Millisecond

// Barcode is one candidate payload found in a frame.
type Barcode struct {
	RawValue string `json:"rawValue"`
	Format   string `json:"format,omitempty"`
}

// Detector attempts to decode barcodes from a single frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Barcode, error)
}

// DetectorFactory creates a detector for one session. A nil factory, or one
// returning an error, means the platform has no detection capability.
type DetectorFactory func() (Detector, error)

// Stream is an exclusively owned camera stream.
type Stream interface {
	// Frame returns the most recent frame, waiting for one if none arrived yet.
	Frame(ctx context.Context) (image.Image, error)
	// Close stops capture and releases the device.
	Close() error
}

// Camera opens capture streams.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Surface displays the live preview of the active stream.
type Surface interface {
	Show(frame image.Image)
	Clear()
}

// Options configures a Scanner.
type Options struct {
	Camera        Camera
	NewDetector   DetectorFactory
	Surface       Surface
	FrameInterval time.Duration
	Events        *EventBus
	OnEvent       func(Event)
	Logger        zerolog.Logger
	NewID         func() string
}

// Snapshot is the observable state of the scanner.
type Snapshot struct {
	SessionID string           `json:"sessionId,omitempty"`
	Label     string           `json:"label,omitempty"`
	State     domain.ScanState `json:"state"`
	Active    bool             `json:"active"`
	LastError string           `json:"lastError,omitempty"`
}

// session is one start..end run of the scanner.
type session struct {
	id       string
	label    string
	onResult func(string)
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// Scanner runs at most one QR scan session at a time.
type Scanner struct {
	camera      Camera
	newDetector DetectorFactory
	surface     Surface
	interval    time.Duration
	events      *EventBus
	onEvent     func(Event)
	logger      zerolog.Logger
	newID       func() string

	mu      sync.Mutex
	state   domain.ScanState
	current *session
	last    *session
	// tail is the newest session with a running goroutine. Its done channel
	// closes only after every earlier session goroutine has exited.
	tail    *session
	lastErr error
}

// New creates a scanner in idle state.
func New(opts Options) *Scanner {
	interval := opts.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	events := opts.Events
	if events == nil {
		events = NewEventBus(0)
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Scanner{
		camera:      opts.Camera,
		newDetector: opts.NewDetector,
		surface:     opts.Surface,
		interval:    interval,
		events:      events,
		onEvent:     opts.OnEvent,
		logger:      opts.Logger.With().Str("component", "scanner").Logger(),
		newID:       newID,
		state:       domain.ScanStateIdle,
	}
}

// Events returns the bus recording this scanner's events.
func (s *Scanner) Events() *EventBus {
	return s.events
}

// Start ends any running session and begins a new one. The returned error is
// non-nil only when no detector is available; camera acquisition continues in
// the background and its failure is reported through LastError and events.
func (s *Scanner) Start(label string, onResult func(value string)) (Snapshot, error) {
	var pending []Event

	s.mu.Lock()
	if s.current != nil {
		pending = append(pending, s.endLocked(s.current, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:       s.newID(),
		label:    strings.TrimSpace(label),
		onResult: onResult,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.lastErr = nil
	s.current = sess
	s.last = sess
	s.setStateLocked(domain.ScanStateAcquiring)
	pending = append(pending, s.statusEventLocked(sess))

	detector, err := s.resolveDetector()
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sess.id).Msg("QR detection unavailable")
		pending = append(pending, s.endLocked(sess, ErrUnsupported))
		close(sess.done)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emit(pending...)
		return snap, ErrUnsupported
	}

	prev := s.tail
	s.tail = sess
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(pending...)

	s.logger.Debug().Str("session", sess.id).Str("label", sess.label).Msg("scan started")
	go s.run(sess, prev, detector)
	return snap, nil
}

// Stop ends the current session and clears the last error. It does nothing
// while the scanner is idle.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if s.state == domain.ScanStateIdle {
		s.mu.Unlock()
		return
	}

	var pending []Event
	if s.current != nil {
		pending = append(pending, s.endLocked(s.current, nil))
		s.logger.Debug().Str("session", s.last.id).Msg("scan stopped")
	}
	s.lastErr = nil
	s.mu.Unlock()
	s.emit(pending...)
}

// Shutdown stops the scanner and waits for every session goroutine to exit,
// including superseded ones still releasing the camera.
func (s *Scanner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	tail := s.tail
	s.mu.Unlock()

	s.Stop()
	if tail == nil {
		return nil
	}

	select {
	case <-tail.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current observable state.
func (s *Scanner) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Active reports whether a session is acquiring or polling.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return isActive(s.state)
}

// LastError returns the most recent session error, or nil.
func (s *Scanner) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// resolveDetector runs the injected factory once for a session.
func (s *Scanner) resolveDetector() (Detector, error) {
	if s.newDetector == nil {
		return nil, ErrUnsupported
	}
	detector, err := s.newDetector()
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, errors.Join(ErrUnsupported, err)
	}
	if detector == nil {
		return nil, ErrUnsupported
	}
	return detector, nil
}

// run acquires the camera and polls frames until the session ends. The
// stream is closed here, before done, so a session that waits on prev.done
// never opens the device while an earlier capture still holds it.
func (s *Scanner) run(sess *session, prev *session, detector Detector) {
	defer close(sess.done)

	if prev != nil {
		<-prev.done
		if sess.ctx.Err() != nil {
			return
		}
	}
	if s.camera == nil {
		s.fail(sess, ErrCameraUnavailable, errors.New("no camera configured"))
		return
	}

	stream, err := s.camera.Open(sess.ctx)
	if err != nil {
		s.fail(sess, ErrCameraUnavailable, err)
		return
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Debug().Err(closeErr).Str("session", sess.id).Msg("close stream")
		}
	}()
	if !s.attach(sess) {
		return
	}

	s.poll(sess, stream, detector)
}

// poll attempts one decode per frame tick.
func (s *Scanner) poll(sess *session, stream Stream, detector Detector) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := stream.Frame(sess.ctx)
		if err != nil {
			if sess.ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrStreamEnded) {
				s.fail(sess, ErrCameraUnavailable, err)
				return
			}
			s.retry(sess, err)
			continue
		}
		if !s.show(sess, frame) {
			return
		}

		codes, err := detector.Detect(sess.ctx, frame)
		if sess.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.retry(sess, err)
			continue
		}

		if value := firstPayload(codes); value != "" {
			s.complete(sess, value)
			return
		}
	}
}

// attach moves the session to polling unless it went stale while acquiring.
func (s *Scanner) attach(sess *session) bool {
	s.mu.Lock()
	if !s.isCurrentLocked(sess) {
		s.mu.Unlock()
		return false
	}
	s.setStateLocked(domain.ScanStatePolling)
	event := s.statusEventLocked(sess)
	s.mu.Unlock()

	s.emit(event)
	s.logger.Debug().Str("session", sess.id).Msg("camera acquired")
	return true
}

// show forwards a frame to the preview surface while the session is current.
func (s *Scanner) show(sess *session, frame image.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isCurrentLocked(sess) {
		return false
	}
	if s.surface != nil {
		s.surface.Show(frame)
	}
	return true
}

// retry records a transient failure and keeps the session polling.
func (s *Scanner) retry(sess *session, cause error) {
	s.mu.Lock()
	if !s.isCurrentLocked(sess) {
		s.mu.Unlock()
		return
	}
	s.lastErr = ErrUnreadable
	event := Event{
		SessionID: sess.id,
		Label:     sess.label,
		Type:      EventTypeError,
		State:     s.state,
		Message:   UserMessage(ErrUnreadable),
	}
	s.mu.Unlock()

	s.logger.Warn().Err(cause).Str("session", sess.id).Msg("frame decode failed")
	s.emit(event)
}

// fail ends the session with a reported error unless it went stale.
func (s *Scanner) fail(sess *session, reported, cause error) {
	s.mu.Lock()
	if !s.isCurrentLocked(sess) {
		s.mu.Unlock()
		return
	}
	event := s.endLocked(sess, reported)
	s.mu.Unlock()

	s.logger.Warn().Err(cause).Str("session", sess.id).Msg(reported.Error())
	s.emit(event)
}

// complete ends the session and delivers the payload exactly once.
func (s *Scanner) complete(sess *session, value string) {
	s.mu.Lock()
	if !s.isCurrentLocked(sess) {
		s.mu.Unlock()
		return
	}
	ended := s.endLocked(sess, nil)
	onResult := sess.onResult
	s.mu.Unlock()

	s.logger.Info().Str("session", sess.id).Str("label", sess.label).Str("value", value).Msg("QR code decoded")
	s.emit(Event{
		SessionID: sess.id,
		Label:     sess.label,
		Type:      EventTypeResult,
		State:     domain.ScanStateEnded,
		Value:     value,
	}, ended)
	if onResult != nil {
		onResult(value)
	}
}

// isCurrentLocked reports whether sess is still the live session.
func (s *Scanner) isCurrentLocked(sess *session) bool {
	return s.current == sess && sess.ctx.Err() == nil
}

// endLocked cancels the session and clears the preview. The session
// goroutine observes the cancellation and closes its stream off the lock.
func (s *Scanner) endLocked(sess *session, reported error) Event {
	sess.cancel()
	if s.surface != nil {
		s.surface.Clear()
	}
	if s.current == sess {
		s.current = nil
	}
	if reported != nil {
		s.lastErr = reported
	}
	s.setStateLocked(domain.ScanStateEnded)

	event := s.statusEventLocked(sess)
	if reported != nil {
		event.Type = EventTypeError
		event.Message = UserMessage(reported)
	}
	return event
}

// setStateLocked applies a transition, logging edges the machine forbids.
func (s *Scanner) setStateLocked(state domain.ScanState) {
	if state == s.state {
		return
	}
	if !isValidTransition(s.state, state) {
		s.logger.Error().Str("from", string(s.state)).Str("to", string(state)).Msg("invalid scan transition")
	}
	s.state = state
}

func (s *Scanner) statusEventLocked(sess *session) Event {
	return Event{
		SessionID: sess.id,
		Label:     sess.label,
		Type:      EventTypeStatus,
		State:     s.state,
	}
}

func (s *Scanner) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     s.state,
		Active:    isActive(s.state),
		LastError: UserMessage(s.lastErr),
	}
	if s.last != nil {
		snap.SessionID = s.last.id
		snap.Label = s.last.label
	}
	return snap
}

// emit records events on the bus and forwards them to the hook.
func (s *Scanner) emit(events ...Event) {
	for _, event := range events {
		published := s.events.Publish(event)
		if s.onEvent != nil {
			s.onEvent(published)
		}
	}
}

// firstPayload returns the first candidate with a non-blank payload, trimmed.
func firstPayload(codes []Barcode) string {
	for _, code := range codes {
		if value := strings.TrimSpace(code.RawValue); value != "" {
			return value
		}
	}
	return ""
}
