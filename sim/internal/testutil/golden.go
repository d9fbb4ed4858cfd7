// Package testutil provides shared test infrastructure for the simulator.
// It holds the golden wire frames used by the sim/wire and sim/protocol tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenFrames represents the structure of testdata/goldenframes.json.
type GoldenFrames struct {
	Frames []GoldenFrame `json:"frames"`
}

// GoldenFrame is one message exactly as it travels on the wire.
type GoldenFrame struct {
	Name      string           `json:"name"`
	Kind      string           `json:"kind"`
	Response  bool             `json:"response"`            // false for requests
	Container *GoldenContainer `json:"container,omitempty"` // CONTAINER_REPORT only
	Circuits  [][][]int        `json:"circuits,omitempty"`  // REQ_CIRCUITS responses only
	Frame     string           `json:"frame"`
}

// GoldenContainer is the payload of a golden CONTAINER_REPORT.
type GoldenContainer struct {
	ID        int `json:"id"`
	Weight    int `json:"weight"`
	Volume    int `json:"volume"`
	VolumeMax int `json:"volumemax"`
}

// LoadGoldenFrames loads the golden frames from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenFrames(t *testing.T) *GoldenFrames {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldenframes.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden frames: %v", err)
	}

	var frames GoldenFrames
	if err := json.Unmarshal(data, &frames); err != nil {
		t.Fatalf("Failed to parse golden frames: %v", err)
	}
	if len(frames.Frames) == 0 {
		t.Fatal("golden frames file is empty")
	}
	return &frames
}
