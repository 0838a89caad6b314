package tracing

import (
	"context"
	"testing"

	"mercator-hq/themis/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tracer.Enabled() {
		t.Error("tracer should report disabled")
	}

	ctx, span := tracer.Start(context.Background(), "decide")
	if ctx == nil || span == nil {
		t.Fatal("noop tracer should still produce spans")
	}
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on disabled tracer error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("nil config should fail")
	}
}
