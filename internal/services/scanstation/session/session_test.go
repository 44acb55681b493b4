package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/attendmark/internal/attendance/outcome"
	"github.com/louisbranch/attendmark/internal/attendance/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type verifyCall struct {
	eventID   string
	stationID string
	payload   string
}

type fakeVerifier struct {
	mu      sync.Mutex
	calls   []verifyCall
	result  outcome.Outcome
	err     error
	release chan struct{}
	started chan struct{}
}

func (v *fakeVerifier) Verify(ctx context.Context, eventID, stationID, payload string) (outcome.Outcome, error) {
	v.mu.Lock()
	v.calls = append(v.calls, verifyCall{eventID: eventID, stationID: stationID, payload: payload})
	result, err, release, started := v.result, v.err, v.release, v.started
	v.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return outcome.Outcome{}, ctx.Err()
		}
	}
	return result, err
}

func (v *fakeVerifier) Calls() []verifyCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]verifyCall(nil), v.calls...)
}

type fakeCamera struct {
	mu     sync.Mutex
	closed int
}

func (c *fakeCamera) Frame(context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCamera) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSource struct {
	camera *fakeCamera
	err    error
}

func (s fakeSource) Open(context.Context) (Camera, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.camera, nil
}

type fakeDecoder struct {
	mu   sync.Mutex
	text string
}

func (d *fakeDecoder) Decode(image.Image) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, d.text != ""
}

func credential(t *testing.T, registrationID string) string {
	t.Helper()

	raw, err := token.Encode(token.Fields{
		RegistrationID:   registrationID,
		EventID:          "e1",
		ParticipantEmail: "a@b.com",
		IssuedAt:         "2024-01-01T00:00:00Z",
		IntegrityTag:     "H",
		SchemaVersion:    1,
	})
	if err != nil {
		t.Fatalf("encode credential: %v", err)
	}
	return raw
}

func waitResult(t *testing.T, c *Controller) Result {
	t.Helper()

	select {
	case result := <-c.Results():
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
		return Result{}
	}
}

type harness struct {
	controller *Controller
	verifier   *fakeVerifier
	camera     *fakeCamera
	decoder    *fakeDecoder
	clock      *fakeClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		verifier: &fakeVerifier{result: outcome.Success("Ada", "Go Meetup", time.Now())},
		camera:   &fakeCamera{},
		decoder:  &fakeDecoder{},
		clock:    newFakeClock(),
	}
	if cfg.EventID == "" {
		cfg.EventID = "e1"
	}
	controller, err := New(cfg, h.verifier,
		WithCamera(fakeSource{camera: h.camera}, h.decoder),
		WithClock(h.clock.Now),
		WithLogf(t.Logf),
	)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.controller = controller
	t.Cleanup(controller.Close)
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func TestCanDispatchIsAFunctionOfStateAndCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		state    State
		cooldown time.Time
		want     bool
	}{
		{StateIdle, time.Time{}, false},
		{StateAcquiring, time.Time{}, false},
		{StateScanning, time.Time{}, true},
		{StateScanning, now, true},
		{StateScanning, now.Add(time.Millisecond), false},
		{StateProcessing, time.Time{}, false},
		{StateResultShown, time.Time{}, false},
		{StateClosed, time.Time{}, false},
	}
	for _, tc := range tests {
		if got := CanDispatch(tc.state, now, tc.cooldown); got != tc.want {
			t.Fatalf("CanDispatch(%s, cooldown=%v) = %v, want %v", tc.state, tc.cooldown, got, tc.want)
		}
	}
}

func TestAcceptFiltersForeignCodes(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "https://example.com", "WIFI:S:guest;;", `{"tag":"other"}`} {
		if _, ok := Accept(raw); ok {
			t.Fatalf("Accept(%q) = true", raw)
		}
	}
	if fields, ok := Accept(credential(t, "r1")); !ok || fields.RegistrationID != "r1" {
		t.Fatalf("Accept(credential) = %+v, %v", fields, ok)
	}
}

func TestNewRequiresEventAndVerifier(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, &fakeVerifier{}); err == nil {
		t.Fatal("expected missing event id to fail")
	}
	if _, err := New(Config{EventID: "e1"}, nil); err == nil {
		t.Fatal("expected missing verifier to fail")
	}
	c, err := New(Config{EventID: "e1"}, &fakeVerifier{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.ID() == "" || c.StationID() != "station-"+c.ID() || c.State() != StateIdle {
		t.Fatalf("defaults = id %q station %q state %s", c.ID(), c.StationID(), c.State())
	}
}

func TestCameraSampleSuccessArmsLocalCooldown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{StationID: "door-a", Cooldown: 2 * time.Second})
	c := h.controller
	h.decoder.text = credential(t, "r1")

	dispatched, err := c.SampleOnce(context.Background())
	if err != nil || !dispatched {
		t.Fatalf("SampleOnce = %v, %v", dispatched, err)
	}
	result := waitResult(t, c)
	if result.Outcome.Kind != outcome.KindSuccess || result.Source != SourceCamera {
		t.Fatalf("result = %+v", result)
	}
	if c.State() != StateResultShown {
		t.Fatalf("state = %s", c.State())
	}
	calls := h.verifier.Calls()
	if len(calls) != 1 || calls[0].eventID != "e1" || calls[0].stationID != "door-a" {
		t.Fatalf("calls = %+v", calls)
	}

	if err := c.ScanAgain(); err != nil {
		t.Fatalf("scan again: %v", err)
	}
	if c.CooldownRemaining() != 2*time.Second {
		t.Fatalf("cooldown remaining = %v", c.CooldownRemaining())
	}
	if dispatched, _ := c.SampleOnce(context.Background()); dispatched {
		t.Fatal("dispatched during local cooldown")
	}
	h.clock.Advance(2 * time.Second)
	if dispatched, err := c.SampleOnce(context.Background()); !dispatched || err != nil {
		t.Fatalf("after cooldown SampleOnce = %v, %v", dispatched, err)
	}
	waitResult(t, c)
	if got := len(h.verifier.Calls()); got != 2 {
		t.Fatalf("verify calls = %d, want 2", got)
	}
}

func TestRejectionDoesNotArmLocalCooldown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Cooldown: time.Minute})
	h.verifier.result = outcome.EventMismatch()

	if ok, err := h.controller.Submit(credential(t, "r1")); !ok || err != nil {
		t.Fatalf("Submit = %v, %v", ok, err)
	}
	result := waitResult(t, h.controller)
	if result.Outcome.Kind != outcome.KindEventMismatch || result.Source != SourceManual {
		t.Fatalf("result = %+v", result)
	}
	if h.controller.CooldownRemaining() != 0 {
		t.Fatalf("cooldown armed after rejection: %v", h.controller.CooldownRemaining())
	}
}

func TestForeignFramesAreSilentlyIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.decoder.text = "https://example.com/menu"

	for range 5 {
		if dispatched, err := h.controller.SampleOnce(context.Background()); dispatched || err != nil {
			t.Fatalf("SampleOnce = %v, %v", dispatched, err)
		}
	}
	if ok, err := h.controller.Submit("hello"); ok || err != nil {
		t.Fatalf("Submit(foreign) = %v, %v", ok, err)
	}
	if len(h.verifier.Calls()) != 0 {
		t.Fatal("foreign input reached the verifier")
	}
	if h.controller.State() != StateScanning {
		t.Fatalf("state = %s", h.controller.State())
	}
}

func TestAtMostOneVerificationOutstanding(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.verifier.release = make(chan struct{})
	h.verifier.started = make(chan struct{}, 1)
	h.decoder.text = credential(t, "r1")

	if dispatched, _ := h.controller.SampleOnce(context.Background()); !dispatched {
		t.Fatal("first sample not dispatched")
	}
	<-h.verifier.started
	if h.controller.State() != StateProcessing {
		t.Fatalf("state = %s", h.controller.State())
	}
	if dispatched, _ := h.controller.SampleOnce(context.Background()); dispatched {
		t.Fatal("second sample dispatched while processing")
	}
	if ok, err := h.controller.Submit(credential(t, "r2")); ok || !errors.Is(err, ErrNotReady) {
		t.Fatalf("Submit while processing = %v, %v", ok, err)
	}

	close(h.verifier.release)
	waitResult(t, h.controller)
	if got := len(h.verifier.Calls()); got != 1 {
		t.Fatalf("verify calls = %d, want 1", got)
	}
}

func TestCloseDiscardsInFlightResultAndReleasesCamera(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.verifier.release = make(chan struct{})
	h.verifier.started = make(chan struct{}, 1)

	if ok, err := h.controller.Submit(credential(t, "r1")); !ok || err != nil {
		t.Fatalf("Submit = %v, %v", ok, err)
	}
	<-h.verifier.started
	h.controller.Close()
	h.controller.Close()

	if h.camera.Closed() != 1 {
		t.Fatalf("camera closed %d times, want 1", h.camera.Closed())
	}
	if h.controller.State() != StateClosed {
		t.Fatalf("state = %s", h.controller.State())
	}
	select {
	case <-h.controller.Done():
	default:
		t.Fatal("done channel not closed")
	}
	select {
	case result := <-h.controller.Results():
		t.Fatalf("late result delivered: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
	if _, err := h.controller.SampleOnce(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("SampleOnce after close err = %v", err)
	}
	if _, err := h.controller.Submit(credential(t, "r1")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after close err = %v", err)
	}
	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after close err = %v", err)
	}
}

func TestTransportFailureBecomesProcessingError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.verifier.err = errors.New("connection refused")

	if ok, err := h.controller.Submit(credential(t, "r1")); !ok || err != nil {
		t.Fatalf("Submit = %v, %v", ok, err)
	}
	result := waitResult(t, h.controller)
	if result.Outcome.Kind != outcome.KindProcessingError {
		t.Fatalf("result = %+v", result)
	}
	if ok, err := h.controller.Submit(credential(t, "r1")); !ok || err != nil {
		t.Fatalf("retry Submit = %v, %v", ok, err)
	}
}

func TestCameraFailureFallsBackToManualInput(t *testing.T) {
	t.Parallel()

	verifier := &fakeVerifier{result: outcome.AlreadyAttended()}
	c, err := New(Config{EventID: "e1"}, verifier,
		WithCamera(fakeSource{err: errors.New("permission denied")}, &fakeDecoder{text: "ignored"}),
		WithLogf(t.Logf),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(c.Close)

	if err := c.Start(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Start err = %v, want ErrCameraUnavailable", err)
	}
	if c.State() != StateScanning || c.HasCamera() {
		t.Fatalf("state = %s camera = %v", c.State(), c.HasCamera())
	}
	if dispatched, err := c.SampleOnce(context.Background()); dispatched || err != nil {
		t.Fatalf("SampleOnce without camera = %v, %v", dispatched, err)
	}
	if ok, err := c.Submit(credential(t, "r1")); !ok || err != nil {
		t.Fatalf("manual Submit = %v, %v", ok, err)
	}
	if result := waitResult(t, c); result.Outcome.Kind != outcome.KindAlreadyAttended {
		t.Fatalf("result = %+v", result)
	}
}

func TestAutoResumeWaitsForCooldown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Cooldown: 2 * time.Second, AutoResume: true})
	h.decoder.text = credential(t, "r1")

	h.controller.Tick(context.Background())
	waitResult(t, h.controller)

	h.controller.Tick(context.Background())
	if h.controller.State() != StateResultShown {
		t.Fatalf("state before cooldown = %s", h.controller.State())
	}
	h.clock.Advance(2 * time.Second)
	h.controller.Tick(context.Background())
	waitResult(t, h.controller)
	if got := len(h.verifier.Calls()); got != 2 {
		t.Fatalf("verify calls = %d, want 2", got)
	}
}

func TestRunStopsOnContextAndClosesSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.controller.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	if h.controller.State() != StateClosed || h.camera.Closed() != 1 {
		t.Fatalf("state = %s camera closed = %d", h.controller.State(), h.camera.Closed())
	}
}
