package match

import "testing"

func TestEditDistance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b    string
		maxDist int
		want    int
	}{
		{"caldera", "caldera", 2, 0},
		{"caldera", "calderra", 2, 1},
		{"caldera", "kaldera", 2, 1},
		{"caldera", "calder", 2, 1},
		{"caldera", "cldra", 2, 2},
		{"caldera", "meridian", 2, 3}, // bailout returns maxDist+1
		{"", "ab", 2, 2},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b, tc.maxDist); got != tc.want {
			t.Fatalf("editDistance(%q, %q, %d) = %d, want %d", tc.a, tc.b, tc.maxDist, got, tc.want)
		}
	}
}

func TestFuzzyTokenMatch(t *testing.T) {
	t.Parallel()

	if !fuzzyTokenMatch("calderra", "caldera", 2) {
		t.Fatalf("expected distance-1 token to match")
	}
	if fuzzyTokenMatch("meridian", "caldera", 2) {
		t.Fatalf("did not expect distant token to match")
	}
	// Short tokens must match exactly.
	if fuzzyTokenMatch("cal", "col", 2) {
		t.Fatalf("short tokens must not fuzzy-match")
	}
	if !fuzzyTokenMatch("cal", "cal", 2) {
		t.Fatalf("identical short tokens must match")
	}
}
