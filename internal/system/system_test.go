package system

import (
	"context"
	"testing"
	"time"
)

func TestInfo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := NewInspector(t.TempDir()).Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Hostname == "" {
		t.Error("hostname empty")
	}
	if info.CPUCores <= 0 {
		t.Errorf("cpu cores = %d", info.CPUCores)
	}
	if info.MemoryTotal == 0 {
		t.Error("memory total = 0")
	}
	if info.DiskTotal == 0 {
		t.Error("disk total = 0")
	}
}

func TestInfoCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewInspector("/").Info(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCheckCapacity(t *testing.T) {
	insp := NewInspector(t.TempDir())
	ctx := context.Background()

	if err := insp.CheckCapacity(ctx, 0, 0); err != nil {
		t.Errorf("zero request rejected: %v", err)
	}
	if err := insp.CheckCapacity(ctx, 128, 0); err != nil {
		t.Errorf("128 MiB rejected: %v", err)
	}
	// No host has a pebibyte of memory or disk.
	if err := insp.CheckCapacity(ctx, 1<<30, 0); err == nil {
		t.Error("absurd memory request accepted")
	}
	if err := insp.CheckCapacity(ctx, 0, 1<<20); err == nil {
		t.Error("absurd disk request accepted")
	}
}

func TestPreflight(t *testing.T) {
	warnings, err := NewInspector(t.TempDir()).Preflight(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// No assertion on the warning set itself: it depends on the machine.
	for _, w := range warnings {
		if w.Check == "" || w.Message == "" {
			t.Fatalf("warning = %+v", w)
		}
	}
}
