// Package session implements the scan session controller that drives a
// station from camera frames or manual input to verification outcomes.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/attendmark/internal/attendance/outcome"
)

const (
	// DefaultInterval is the frame sampling cadence.
	DefaultInterval = 250 * time.Millisecond
	// DefaultCooldown is the local pause after a successful check-in.
	DefaultCooldown = 2 * time.Second

	resultBuffer = 8
)

var (
	// ErrCameraUnavailable reports that the camera could not be acquired.
	// The session stays open for manual input.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrClosed reports an operation on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrNotReady reports that a payload cannot be dispatched right now.
	ErrNotReady = errors.New("session is not ready to scan")
)

// Camera yields frames until closed.
type Camera interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// CameraSource acquires the camera for one session.
type CameraSource interface {
	Open(ctx context.Context) (Camera, error)
}

// Decoder turns a frame into the text of the code it contains.
type Decoder interface {
	Decode(frame image.Image) (string, bool)
}

// Verifier submits a payload to the attendance service.
type Verifier interface {
	Verify(ctx context.Context, eventID, stationID, payload string) (outcome.Outcome, error)
}

// Source names where a payload came from.
type Source string

const (
	SourceCamera Source = "camera"
	SourceManual Source = "manual"
)

// Result is a verification outcome delivered to the operator.
type Result struct {
	Outcome outcome.Outcome
	Source  Source
	At      time.Time
}

// Config scopes a session to one event.
type Config struct {
	EventID    string
	StationID  string
	Interval   time.Duration
	Cooldown   time.Duration
	AutoResume bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithCamera sets the camera source and frame decoder. Without them the
// session accepts manual input only.
func WithCamera(source CameraSource, decoder Decoder) Option {
	return func(c *Controller) {
		c.source = source
		c.decoder = decoder
	}
}

// WithClock overrides the session clock.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogf overrides the session logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(c *Controller) {
		if logf != nil {
			c.logf = logf
		}
	}
}

// Controller owns one scan session: its camera, its local cooldown and the
// single verification that may be outstanding at a time.
type Controller struct {
	id       string
	cfg      Config
	verifier Verifier
	source   CameraSource
	decoder  Decoder
	clock    func() time.Time
	logf     func(format string, args ...any)
	results  chan Result

	mu            sync.Mutex
	state         State
	cooldownUntil time.Time
	camera        Camera
	attempt       uint64
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
}

// New creates an idle session for cfg.EventID.
func New(cfg Config, verifier Verifier, opts ...Option) (*Controller, error) {
	cfg.EventID = strings.TrimSpace(cfg.EventID)
	if cfg.EventID == "" {
		return nil, errors.New("event id is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	c := &Controller{
		id:       uuid.NewString(),
		cfg:      cfg,
		verifier: verifier,
		clock:    time.Now,
		logf:     log.Printf,
		results:  make(chan Result, resultBuffer),
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	if c.cfg.StationID == "" {
		c.cfg.StationID = "station-" + c.id
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// StationID returns the station identifier sent with every attempt.
func (c *Controller) StationID() string { return c.cfg.StationID }

// EventID returns the event the session is scoped to.
func (c *Controller) EventID() string { return c.cfg.EventID }

// Results delivers verification outcomes. Silent outcomes are never sent.
func (c *Controller) Results() <-chan Result { return c.results }

// Done is closed when the session closes.
func (c *Controller) Done() <-chan struct{} { return c.done }

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasCamera reports whether the session holds a camera.
func (c *Controller) HasCamera() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera != nil
}

// CooldownRemaining returns how long the local cooldown still blocks
// dispatch.
func (c *Controller) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining := c.cooldownUntil.Sub(c.clock()); remaining > 0 {
		return remaining
	}
	return 0
}

// Start acquires the camera and begins scanning. When the camera cannot be
// opened Start returns an error wrapping ErrCameraUnavailable and the
// session continues in manual-only mode.
func (c *Controller) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("start session in state %s", state)
	}
	c.state = StateAcquiring
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	source := c.source
	c.mu.Unlock()

	var (
		camera  Camera
		openErr error
	)
	if source != nil {
		camera, openErr = source.Open(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		if camera != nil {
			_ = camera.Close()
		}
		return ErrClosed
	}
	c.state = StateScanning
	if openErr != nil {
		c.logf("session %s: open camera: %v", c.id, openErr)
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, openErr)
	}
	c.camera = camera
	return nil
}

// Run samples frames on the configured cadence until ctx ends or the
// session closes, then closes the session.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Close()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick performs one loop step: resume after a shown result when configured,
// then sample one frame.
func (c *Controller) Tick(ctx context.Context) {
	if c.cfg.AutoResume {
		c.mu.Lock()
		if c.state == StateResultShown && !c.clock().Before(c.cooldownUntil) {
			c.state = StateScanning
		}
		c.mu.Unlock()
	}
	if _, err := c.SampleOnce(ctx); err != nil && !errors.Is(err, ErrClosed) {
		c.logf("session %s: sample frame: %v", c.id, err)
	}
}

// SampleOnce reads and decodes one frame, dispatching it when it carries a
// credential and the session can take a new attempt.
func (c *Controller) SampleOnce(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	camera := c.camera
	ready := CanDispatch(c.state, c.clock(), c.cooldownUntil)
	c.mu.Unlock()
	if camera == nil || c.decoder == nil || !ready {
		return false, nil
	}

	frame, err := camera.Frame(ctx)
	if err != nil || frame == nil {
		return false, nil
	}
	raw, ok := c.decoder.Decode(frame)
	if !ok {
		return false, nil
	}
	return c.dispatch(raw, SourceCamera)
}

// Submit sends a manually entered payload through the same guard and
// verification path as camera input. A shown result is dismissed first.
func (c *Controller) Submit(raw string) (bool, error) {
	c.mu.Lock()
	if c.state == StateResultShown {
		c.state = StateScanning
	}
	c.mu.Unlock()
	return c.dispatch(raw, SourceManual)
}

// ScanAgain dismisses the shown result and resumes scanning.
func (c *Controller) ScanAgain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateResultShown:
		c.state = StateScanning
	}
	return nil
}

// Close ends the session, releases the camera and discards any verification
// still in flight. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.cooldownUntil = time.Time{}
	c.attempt++
	camera := c.camera
	c.camera = nil
	if c.cancel != nil {
		c.cancel()
	}
	close(c.done)
	c.mu.Unlock()

	if camera != nil {
		if err := camera.Close(); err != nil {
			c.logf("session %s: close camera: %v", c.id, err)
		}
	}
}

func (c *Controller) dispatch(raw string, source Source) (bool, error) {
	if _, ok := Accept(raw); !ok {
		return false, nil
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if !CanDispatch(c.state, c.clock(), c.cooldownUntil) {
		c.mu.Unlock()
		return false, ErrNotReady
	}
	c.state = StateProcessing
	c.attempt++
	attempt := c.attempt
	ctx := c.ctx
	c.mu.Unlock()

	go c.verify(ctx, attempt, raw, source)
	return true, nil
}

func (c *Controller) verify(ctx context.Context, attempt uint64, raw string, source Source) {
	result, err := c.verifier.Verify(ctx, c.cfg.EventID, c.cfg.StationID, raw)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logf("session %s: verify: %v", c.id, err)
		result = outcome.ProcessingError()
	}

	c.mu.Lock()
	if c.state != StateProcessing || c.attempt != attempt {
		c.mu.Unlock()
		return
	}
	now := c.clock()
	if result.Silent() {
		c.state = StateScanning
		c.mu.Unlock()
		return
	}
	c.state = StateResultShown
	if result.Kind == outcome.KindSuccess {
		c.cooldownUntil = now.Add(c.cfg.Cooldown)
	}
	c.mu.Unlock()

	select {
	case c.results <- Result{Outcome: result, Source: source, At: now}:
	default:
		c.logf("session %s: dropped %s result, operator is not reading", c.id, result.Kind)
	}
}
