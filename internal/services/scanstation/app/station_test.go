package station

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/attendmark/internal/attendance/outcome"
	"github.com/louisbranch/attendmark/internal/attendance/token"
	grpcattendance "github.com/louisbranch/attendmark/internal/services/attendance/api/grpc/attendance"
	"github.com/louisbranch/attendmark/internal/services/attendance/operatorauth"
	"github.com/louisbranch/attendmark/internal/services/scanstation/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type stubVerifier struct {
	mu       sync.Mutex
	payloads []string
	result   outcome.Outcome
}

func (v *stubVerifier) Verify(_ context.Context, _, _, payload string) (outcome.Outcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.payloads = append(v.payloads, payload)
	return v.result, nil
}

func (v *stubVerifier) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.payloads)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func credential(t *testing.T) string {
	t.Helper()

	raw, err := token.Encode(token.Fields{
		RegistrationID:   "r1",
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

func TestConsoleSubmitsManualInputAndPrintsLocalizedResult(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{result: outcome.Success("Ada", "Go Meetup", time.Now())}
	controller, err := session.New(session.Config{EventID: "e1", StationID: "door-a", Interval: time.Millisecond}, verifier,
		session.WithLogf(t.Logf))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	out := &syncBuffer{}
	console := NewConsole(controller, "pt-BR", out)

	in, input := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- console.Serve(context.Background(), in) }()

	if _, err := io.WriteString(input, "not a credential\n"+credential(t)+"\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, "success message", func() bool {
		return strings.Contains(out.String(), "Presença de Ada confirmada em Go Meetup.")
	})
	if verifier.count() != 1 {
		t.Fatalf("verify calls = %d, want 1", verifier.count())
	}
	_ = input.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop after input closed")
	}
	if controller.State() != session.StateClosed {
		t.Fatalf("state = %s", controller.State())
	}
	if !strings.Contains(out.String(), "Scanning for event e1 as door-a.") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestConsoleStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	controller, err := session.New(session.Config{EventID: "e1", Interval: time.Millisecond}, &stubVerifier{},
		session.WithLogf(t.Logf))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	in, input := io.Pipe()
	defer input.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewConsole(controller, "", &syncBuffer{}).Serve(ctx, in) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop after cancel")
	}
}

func TestClientVerifierReportsRejectedOperator(t *testing.T) {
	auth, err := operatorauth.NewAuthenticator("operator-secret-for-tests", nil)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	// The interceptor rejects the call before the handler is reached.
	server := grpc.NewServer(grpc.UnaryInterceptor(operatorauth.UnaryServerInterceptor(auth, grpcattendance.Policy())))
	grpcattendance.RegisterAttendanceServer(server, grpcattendance.NewService(nil))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	verifier := ClientVerifier{Client: grpcattendance.NewClient(conn, "not-a-jwt")}
	got, err := verifier.Verify(context.Background(), "e1", "s1", credential(t))
	if err == nil {
		t.Fatal("expected error for rejected operator token")
	}
	if got.Kind != outcome.KindProcessingError {
		t.Fatalf("outcome = %s, want processing error", got.Kind)
	}
	if !strings.Contains(err.Error(), "OPERATOR_UNAUTHENTICATED") {
		t.Fatalf("error = %v, want operator code", err)
	}
}
