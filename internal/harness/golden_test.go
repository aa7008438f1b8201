package harness

import (
	"path/filepath"
	"testing"
)

// TestGolden_Scenarios runs every checked-in scenario and compares its trace
// snapshot against the matching golden file.
func TestGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	if err != nil {
		t.Fatalf("glob scenarios: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no scenario files found")
	}

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			if err != nil {
				t.Fatalf("LoadScenario() failed: %v", err)
			}

			result, err := RunWithGolden(t, s)
			if err != nil {
				t.Fatalf("RunWithGolden() failed: %v", err)
			}
			if !result.Passed() {
				t.Errorf("scenario failed: %v", result.Errors)
			}
		})
	}
}
