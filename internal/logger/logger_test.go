package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("card_id", 7).Info("payment applied", "boxes", 2)
	l.Debug("dropped below level")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["card_id"] != int64(7) {
		t.Errorf("card_id field = %v, want 7", fields["card_id"])
	}
	if fields["boxes"] != int64(2) {
		t.Errorf("boxes field = %v, want 2", fields["boxes"])
	}
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		l.Sync()
	}
}
