package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func TestRunVerifyRoundTrip(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	h, err := buildHub()
	if err != nil {
		t.Fatalf("buildHub returned error: %v", err)
	}

	envelope := h.codec.Wrap("the generated answer", h.facts.Load(), nil)
	path := filepath.Join(workspace, "envelope.txt")
	if err := os.WriteFile(path, []byte(envelope), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runVerify(&cobra.Command{}, []string{path}); err != nil {
		t.Fatalf("runVerify returned error for a valid envelope: %v", err)
	}
}

func TestRunVerifyInvalidEnvelopeReturnsError(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	// A bare response with no header must surface as an error return,
	// not a process exit, so deferred teardown still runs.
	path := filepath.Join(workspace, "bare.txt")
	if err := os.WriteFile(path, []byte("no envelope here"), 0644); err != nil {
		t.Fatal(err)
	}

	err := runVerify(&cobra.Command{}, []string{path})
	if err == nil {
		t.Fatal("expected an error for content without a header")
	}
}
