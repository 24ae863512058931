package platform

import "testing"

func TestHiddenProgressBar(t *testing.T) {
	bar := NewProgressBar("Scanning zones", "zone", 3, true)

	for i := 0; i < 3; i++ {
		if err := bar.Add(1); err != nil {
			t.Fatalf("couldn't advance bar: %v", err)
		}
	}

	if got := bar.State().CurrentNum; got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}
