package probe

import (
	"os"
	"testing"
)

func TestAliveSelf(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Fatal("expected our own pid to be alive")
	}
}

func TestAliveInvalidPID(t *testing.T) {
	for _, pid := range []int{0, -1, 1 << 30} {
		if Alive(pid) {
			t.Fatalf("pid %d reported alive", pid)
		}
	}
}

func TestSampleSelf(t *testing.T) {
	m, ok := Sample(os.Getpid())
	if !ok {
		t.Fatal("expected to sample our own process")
	}
	if m.MemoryMB <= 0 {
		t.Fatalf("expected positive RSS, got %v", m.MemoryMB)
	}
	if m.CPUPercent < 0 {
		t.Fatalf("negative cpu percent: %v", m.CPUPercent)
	}
}

func TestSampleMissingProcess(t *testing.T) {
	if m, ok := Sample(1 << 30); ok {
		t.Fatalf("sampled a nonexistent process: %+v", m)
	}
	if m, ok := Sample(-5); ok {
		t.Fatalf("sampled a negative pid: %+v", m)
	}
}
