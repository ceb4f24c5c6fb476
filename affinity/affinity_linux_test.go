//go:build linux

package affinity

import (
	"runtime"
	"testing"
)

func TestPinToAllowedCPU(t *testing.T) {
	cpus, err := Allowed()
	if err != nil {
		t.Fatalf("Allowed: %v", err)
	}
	if len(cpus) == 0 {
		t.Fatal("no allowed cpus")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		// The thread is discarded on exit since it stays locked.
		if err := Pin(cpus[0]); err != nil {
			t.Errorf("Pin(%d): %v", cpus[0], err)
			return
		}
		got, err := Allowed()
		if err != nil {
			t.Errorf("Allowed after pin: %v", err)
			return
		}
		if len(got) != 1 || got[0] != cpus[0] {
			t.Errorf("allowed = %v, want [%d]", got, cpus[0])
		}
	}()
	<-done
}

func TestPinRejectsNegative(t *testing.T) {
	if err := Pin(-1); err == nil {
		t.Fatal("expected error for negative cpu")
	}
}
