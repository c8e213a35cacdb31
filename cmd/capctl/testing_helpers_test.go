package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testBootInfo = `{
  "arch": "aarch32",
  "cnode_size_bits": 12,
  "empty": {"first": 14, "count": 4082},
  "untyped": [
    {"cap": 12, "size_bits": 20, "paddr": "0x10000000"},
    {"cap": 13, "size_bits": 16, "paddr": "0x09000000", "device": true}
  ]
}`

// writeBootInfo writes a boot description into a temp dir and returns its path
func writeBootInfo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boot.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write boot description: %v", err)
	}
	return path
}

// resetFlags restores every command flag to its default
func resetFlags() {
	quiet = false
	verbose = false
	jsonOut = false

	simEndpoints, simTCBs, simPages, simStack, simDMA, simMint = 0, 0, 0, 0, 0, 0
	simIPC = false
	simAt = nil

	objsizeArch = "aarch32"
	objsizeSizeBits = 0
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	// Save original stdout
	origStdout := os.Stdout

	// Create a pipe to capture output
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	// Redirect stdout to pipe
	os.Stdout = w

	// Run function
	fnErr := fn()

	// Close write end and restore stdout
	w.Close()
	os.Stdout = origStdout

	// Read captured output
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
