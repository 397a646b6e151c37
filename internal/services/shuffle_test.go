package services

import (
	"slices"
	"strings"
	"testing"
)

func TestShuffleIsPermutation(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 50} {
		in := make([]int, n)
		for i := range in {
			in[i] = i % 5
		}
		orig := slices.Clone(in)

		out := Shuffle(in)
		if !slices.Equal(in, orig) {
			t.Errorf("n=%d: input was modified", n)
		}
		if len(out) != n {
			t.Fatalf("n=%d: got %d items", n, len(out))
		}
		sorted := slices.Clone(out)
		slices.Sort(sorted)
		want := slices.Clone(orig)
		slices.Sort(want)
		if !slices.Equal(sorted, want) {
			t.Errorf("n=%d: %v is not a permutation of %v", n, out, orig)
		}
	}
}

func TestShuffleReachesEveryPermutation(t *testing.T) {
	seen := make(map[string]int)
	for range 600 {
		seen[strings.Join(Shuffle([]string{"a", "b", "c"}), "")]++
	}
	if len(seen) != 6 {
		t.Errorf("saw %d of 6 permutations: %v", len(seen), seen)
	}
}
