package correlation_test

import (
	"context"
	"testing"

	"github.com/k1networth/users-bus/internal/shared/correlation"
)

func TestGetFallsBackToUnknown(t *testing.T) {
	if got := correlation.Get(context.Background()); got != correlation.Unknown {
		t.Fatalf("expected %q, got %q", correlation.Unknown, got)
	}
	if got := correlation.Get(correlation.With(context.Background(), "")); got != correlation.Unknown {
		t.Fatalf("expected %q for empty id, got %q", correlation.Unknown, got)
	}
}

func TestWithRoundTrip(t *testing.T) {
	ctx := correlation.With(context.Background(), "c1")
	if got := correlation.Get(ctx); got != "c1" {
		t.Fatalf("expected %q, got %q", "c1", got)
	}
	if a := correlation.Attr(ctx); a.Key != "correlation_id" || a.Value.String() != "c1" {
		t.Fatalf("unexpected attr %v", a)
	}
}
