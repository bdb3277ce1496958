package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/layout"
)

const smallLot = `
width: 100
height: 100
rects:
  - [0, 0, 10, 20]
  - [0, 20, 10, 20]
  - [60, 60, 20, 10]
  - [80, 60, 20, 10]
groups:
  - [0, 1]
  - [2, 3]
`

func writeLayout(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	return path
}

func TestLayoutCommandTable(t *testing.T) {
	path := writeLayout(t, "lot.yaml", smallLot)

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"layout", "--layout", path, "--env-file", ""})
	if err := root.Execute(); err != nil {
		t.Fatalf("layout command: %v", err)
	}
	for _, want := range []string{"S1-A1", "S4-B2", "G1-A1", "G2-B2", "Opposite groups: G1-A1/G2-B2"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestLayoutCommandJSON(t *testing.T) {
	path := writeLayout(t, "lot.yaml", smallLot)

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"layout", "-l", path, "--format", "json", "--env-file", ""})
	if err := root.Execute(); err != nil {
		t.Fatalf("layout command: %v", err)
	}

	var views []spaceView
	if err := json.Unmarshal(out.Bytes(), &views); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(views) != 6 {
		t.Fatalf("got %d spaces, want 6", len(views))
	}
	if views[0].Position == nil || views[4].Position != nil || !views[4].IsGroup {
		t.Fatalf("unexpected views: %+v", views)
	}
}

func TestLayoutCommandRejectsUnknownFormat(t *testing.T) {
	path := writeLayout(t, "lot.yaml", smallLot)
	root := newRootCmd(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"layout", "-l", path, "--format", "xml", "--env-file", ""})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected an error for an unknown format")
	}
}

func TestRunSimulationAccelerated(t *testing.T) {
	path := writeLayout(t, "lot.yaml", smallLot)

	var out bytes.Buffer
	err := runSimulation(context.Background(), runOptions{
		layoutPath:   path,
		tick:         time.Second,
		duration:     300 * time.Millisecond,
		accelerated:  true,
		autoAllocate: true,
		seed:         42,
		refreshEvery: 5,
		pAdd:         0.5,
		pRemove:      0.1,
		reset:        true,
		view:         true,
		stopTimeout:  time.Second,
	}, &out, logging.Noop())
	if err != nil {
		t.Fatalf("runSimulation: %v", err)
	}
	if !strings.Contains(out.String(), "Final: 6 spaces") {
		t.Fatalf("missing final summary:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "SECTION") {
		t.Fatalf("missing rendered lot:\n%s", out.String())
	}
}

func TestRunSimulationMissingLayout(t *testing.T) {
	err := runSimulation(context.Background(), runOptions{
		layoutPath: filepath.Join(t.TempDir(), "missing.yaml"),
		tick:       time.Second,
	}, &bytes.Buffer{}, nil)
	if err == nil {
		t.Fatalf("expected an error for a missing layout")
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	const key = "PARKSIM_ENV_FILE_TEST"
	path := writeLayout(t, "test.env", key+"=loaded\n")
	t.Cleanup(func() { os.Unsetenv(key) })
	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv(key); got != "loaded" {
		t.Fatalf("%s = %q, want loaded", key, got)
	}
}

func TestBundledLayoutLoads(t *testing.T) {
	lay, err := layout.Load(context.Background(), filepath.Join("..", "..", "configs", "lot.yaml"), logging.Noop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	spaces := lay.Spaces(context.Background(), time.Time{}, nil)
	if len(spaces) != 25 {
		t.Fatalf("got %d spaces, want 21 stalls and 4 groups", len(spaces))
	}
}
