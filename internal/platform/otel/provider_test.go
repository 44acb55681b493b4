package otel

import (
	"context"
	"strings"
	"testing"
)

func TestSettingsActive(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     bool
	}{
		{name: "no endpoint", settings: Settings{}, want: false},
		{name: "endpoint", settings: Settings{Endpoint: "http://collector:4318"}, want: true},
		{name: "disabled", settings: Settings{Endpoint: "http://collector:4318", Enabled: "FALSE"}, want: false},
		{name: "enabled flag alone", settings: Settings{Enabled: "true"}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.settings.active(); got != tc.want {
				t.Fatalf("active() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSettingsSampler(t *testing.T) {
	tests := map[string]string{
		"":      "AlwaysOnSampler",
		"bogus": "AlwaysOnSampler",
		"1.5":   "AlwaysOnSampler",
		"0.25":  "ParentBased",
	}
	for ratio, want := range tests {
		got := Settings{SampleRatio: ratio}.sampler().Description()
		if !strings.HasPrefix(got, want) {
			t.Errorf("sampler(%q) = %q, want prefix %q", ratio, got, want)
		}
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("ATTENDMARK_OTEL_ENDPOINT", "")

	shutdown, err := Setup(context.Background(), "attendance")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestSetupRegistersProvider(t *testing.T) {
	// TEST-NET address: nothing is exported during the test.
	t.Setenv("ATTENDMARK_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("ATTENDMARK_OTEL_SAMPLE_RATIO", "0.5")

	shutdown, err := Setup(context.Background(), "attendance")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
