package toolchain

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test requires a POSIX shell")
	}
}

func TestRun_SuccessCapturesOutput(t *testing.T) {
	requireSh(t)
	r := NewRunner(t.TempDir(),
		[]string{"sh", "-c", "echo configured"},
		[]string{"sh", "-c", "echo built"},
		5*time.Second)

	res, err := r.Configure(context.Background())
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if !res.Succeeded() {
		t.Errorf("expected success, exit code %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "configured") {
		t.Errorf("stdout not captured: %q", res.Output)
	}
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	requireSh(t)
	r := NewRunner(t.TempDir(),
		[]string{"sh", "-c", "true"},
		[]string{"sh", "-c", "echo 'main.cpp:1:1: error: boom' >&2; exit 2"},
		5*time.Second)

	res, err := r.Build(context.Background())
	if err != nil {
		t.Fatalf("a failing build must still yield a result, got error: %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "error: boom") {
		t.Errorf("stderr must be captured in combined output: %q", res.Output)
	}
}

func TestRun_Timeout(t *testing.T) {
	requireSh(t)
	r := NewRunner(t.TempDir(),
		[]string{"sh", "-c", "sleep 5"},
		[]string{"sh", "-c", "true"},
		50*time.Millisecond)

	_, err := r.Configure(context.Background())
	if !errors.Is(err, ErrUnresponsive) {
		t.Errorf("expected ErrUnresponsive, got %v", err)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	r := NewRunner(t.TempDir(),
		[]string{"definitely-not-a-real-tool-xyz"},
		[]string{"true"},
		time.Second)

	_, err := r.Configure(context.Background())
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	if errors.Is(err, ErrUnresponsive) {
		t.Error("a missing binary is not a timeout")
	}
}
