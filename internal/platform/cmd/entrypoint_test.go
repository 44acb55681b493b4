package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"testing"
)

type testConfig struct {
	Address string `env:"ATTENDMARK_CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8095"`
	Station string `env:"ATTENDMARK_CMD_TEST_STATION" envDefault:"door-a"`
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("ATTENDMARK_CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("ATTENDMARK_CMD_TEST_STATION", "door-env")

	var cfg testConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address")
	fs.StringVar(&cfg.Station, "station", cfg.Station, "station")
	if err := ParseArgs(fs, []string{"-address", "flag:9001"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if cfg.Address != "flag:9001" || cfg.Station != "door-env" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsMissingTargets(t *testing.T) {
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected nil config to fail")
	}
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected nil flag set to fail")
	}
}

func TestRunWithTelemetry(t *testing.T) {
	t.Setenv("ATTENDMARK_OTEL_ENDPOINT", "")

	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceAttendance, nil); err == nil {
		t.Fatal("expected missing run function error")
	}

	want := errors.New("boom")
	called := false
	err := RunWithTelemetry(context.Background(), ServiceAttendance, func(context.Context) error {
		called = true
		return want
	})
	if !called || !errors.Is(err, want) {
		t.Fatalf("run called = %v err = %v", called, err)
	}
}

func TestSetLogPrefixUsesUpperCaseService(t *testing.T) {
	previous := log.Prefix()
	t.Cleanup(func() { log.SetPrefix(previous) })

	SetLogPrefix(ServiceScanStation)
	if got := log.Prefix(); got != "[SCANSTATION] " {
		t.Fatalf("log prefix = %q, want %q", got, "[SCANSTATION] ")
	}
	SetLogPrefix(" ")
	if got := log.Prefix(); got != "[SCANSTATION] " {
		t.Fatalf("blank service should keep prefix, got %q", got)
	}
}
