// Package station runs the operator console of a scan station: camera
// sampling, manual input and localized outcome messages.
package station

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/attendmark/internal/attendance/outcome"
	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
	platformgrpc "github.com/louisbranch/attendmark/internal/platform/grpc"
	"github.com/louisbranch/attendmark/internal/platform/timeouts"
	grpcattendance "github.com/louisbranch/attendmark/internal/services/attendance/api/grpc/attendance"
	"github.com/louisbranch/attendmark/internal/services/scanstation/camera"
	"github.com/louisbranch/attendmark/internal/services/scanstation/optical"
	"github.com/louisbranch/attendmark/internal/services/scanstation/session"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

// Options configures a station run.
type Options struct {
	AttendanceAddr string
	OperatorToken  string
	EventID        string
	StationID      string
	Interval       time.Duration
	Cooldown       time.Duration
	FramesDir      string
	Locale         string
}

// Run dials the attendance service and serves the console on stdin and
// stdout until ctx ends or input closes.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	conn, err := platformgrpc.DialWithHealth(ctx, opts.AttendanceAddr, timeouts.GRPCDial, log.Printf)
	if err != nil {
		return fmt.Errorf("dial attendance service: %w", err)
	}
	defer conn.Close()

	verifier := ClientVerifier{Client: grpcattendance.NewClient(conn, opts.OperatorToken)}
	sessionOpts := []session.Option{}
	if strings.TrimSpace(opts.FramesDir) != "" {
		sessionOpts = append(sessionOpts, session.WithCamera(camera.Directory{Path: opts.FramesDir}, optical.NewQR()))
	}
	controller, err := session.New(session.Config{
		EventID:    opts.EventID,
		StationID:  opts.StationID,
		Interval:   opts.Interval,
		Cooldown:   opts.Cooldown,
		AutoResume: true,
	}, verifier, sessionOpts...)
	if err != nil {
		return err
	}
	return NewConsole(controller, opts.Locale, out).Serve(ctx, in)
}

// ClientVerifier adapts the attendance gRPC client to the session.
type ClientVerifier struct {
	Client *grpcattendance.Client
}

// Verify sends one payload to the attendance service.
func (v ClientVerifier) Verify(ctx context.Context, eventID, stationID, payload string) (outcome.Outcome, error) {
	resp, err := v.Client.Verify(ctx, &grpcattendance.VerifyRequest{
		EventID:   eventID,
		StationID: stationID,
		Payload:   payload,
	})
	if err != nil {
		if code := apperrors.FromGRPC(err); code != apperrors.CodeUnknown {
			return outcome.ProcessingError(), fmt.Errorf("attendance rejected request (%s): %w", code, err)
		}
		return outcome.ProcessingError(), err
	}
	return resp.Outcome, nil
}

// Console prints session results and feeds manual input to the session.
type Console struct {
	controller *session.Controller
	locale     language.Tag

	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console for controller.
func NewConsole(controller *session.Controller, locale string, out io.Writer) *Console {
	return &Console{
		controller: controller,
		locale:     outcome.MatchLocale(locale),
		out:        out,
	}
}

// Serve starts the session and runs until ctx ends, input closes or the
// session closes.
func (c *Console) Serve(ctx context.Context, in io.Reader) error {
	defer c.controller.Close()

	if err := c.controller.Start(ctx); err != nil {
		if !errors.Is(err, session.ErrCameraUnavailable) {
			return err
		}
		c.printf("Camera unavailable. Paste credentials below, one per line.")
	}
	c.printf("Scanning for event %s as %s.", c.controller.EventID(), c.controller.StationID())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.controller.Run(groupCtx)
	})
	group.Go(func() error {
		for {
			select {
			case <-c.controller.Done():
				return nil
			case result := <-c.controller.Results():
				c.printResult(result)
			}
		}
	})
	lines := make(chan string)
	go readLines(in, lines, c.controller.Done())
	group.Go(func() error {
		defer c.controller.Close()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				c.submit(line)
			}
		}
	})
	return group.Wait()
}

func (c *Console) submit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if _, err := c.controller.Submit(line); err != nil {
		if errors.Is(err, session.ErrNotReady) {
			c.printf("Still busy, try again in a moment.")
			return
		}
		if !errors.Is(err, session.ErrClosed) {
			log.Printf("submit manual payload: %v", err)
		}
	}
}

func (c *Console) printResult(result session.Result) {
	message := outcome.Message(result.Outcome, c.locale)
	if message == "" {
		return
	}
	c.printf("[%s] %s", result.Outcome.Kind, message)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

func readLines(in io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
}
