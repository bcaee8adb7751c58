package brackets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/matchforge/tournament-engine/brackets"
)

func TestSeedPositions_SmallSizes(t *testing.T) {
	assert.Equal(t, []int{1, 2}, brackets.SeedPositions(2))
	assert.Equal(t, []int{1, 4, 2, 3}, brackets.SeedPositions(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, brackets.SeedPositions(8))
}

func TestSeedPositions_PairsSumToSizePlusOne(t *testing.T) {
	for _, size := range []int{4, 8, 16, 32} {
		positions := brackets.SeedPositions(size)
		assert.Len(t, positions, size)

		seen := make(map[int]bool, size)
		for _, seed := range positions {
			seen[seed] = true
		}
		assert.Len(t, seen, size, "positions must be a permutation of 1..%d", size)

		for i := 0; i < size; i += 2 {
			assert.Equal(t, size+1, positions[i]+positions[i+1],
				"first-round pair (%d, %d) in bracket of %d", positions[i], positions[i+1], size)
		}
	}
}

func TestSeedPositions_TopSeedsInOppositeHalves(t *testing.T) {
	positions := brackets.SeedPositions(16)

	half := func(seed int) int {
		for i, s := range positions {
			if s == seed {
				return i / 8
			}
		}
		t.Fatalf("seed %d not placed", seed)
		return -1
	}
	assert.NotEqual(t, half(1), half(2), "seeds 1 and 2 meet only in the final")
	assert.NotEqual(t, half(3), half(4))
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 8: 8, 9: 16, 16: 16, 17: 32}
	for n, want := range cases {
		assert.Equal(t, want, brackets.NextPowerOfTwo(n), "n=%d", n)
	}
}
