package timer

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seq  []string
		want []int64
	}{
		{"steady countdown", []string{"10", "09", "08"}, []int64{-1, -1}},
		{"single value", []string{"10"}, nil},
		{"empty sequence", nil, nil},
		{"empty strings skipped", []string{"10", "", "09"}, []int64{-1}},
		{"all empty", []string{"", "", ""}, nil},
		{"leading zeros parse decimal", []string{"0059", "0058"}, []int64{-1}},
		{"increase", []string{"09", "59"}, []int64{50}},
		{"overflowing value skipped", []string{"10", "999999999999999999999999", "9"}, []int64{-1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diffs(tt.seq))
		})
	}
}

func TestCountUpdatesExclusionSet(t *testing.T) {
	t.Parallel()

	diffs := []int64{-59, -5, -9, -1, 50, 59}

	t.Run("historical unsigned set is inert", func(t *testing.T) {
		// The exclusion values are compared against the raw diff, and a
		// negative diff never equals 59, 5 or 9. All four decreases count,
		// and +50/+59 are plain positive diffs.
		nNeg, nPos := countUpdates(diffs, []int64{59, 5, 9})
		assert.Equal(t, 4, nNeg)
		assert.Equal(t, 2, nPos)
	})

	t.Run("signed set excludes rollover decreases", func(t *testing.T) {
		nNeg, nPos := countUpdates(diffs, []int64{-59, -5, -9})
		assert.Equal(t, 1, nNeg)
		assert.Equal(t, 2, nPos)
	})

	t.Run("exclusions never affect positive diffs", func(t *testing.T) {
		nNeg, nPos := countUpdates([]int64{50, 59, 5, 9}, []int64{59, 5, 9})
		assert.Equal(t, 0, nNeg)
		assert.Equal(t, 4, nPos)
	})
}

func TestIsDecreasing(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	tests := []struct {
		name  string
		diffs []int64
		want  bool
	}{
		{"pure countdown passes", []int64{-1, -1, -1, -1, -1}, true},
		{"four decreases below floor", []int64{-1, -1, -1, -1}, false},
		{"empty diffs", nil, false},
		{"all increases", []int64{1, 1, 1, 1, 1}, false},
		// Ratio exactly 5 must fail: the comparison is strict.
		{"ratio exactly at threshold", []int64{-1, -1, -1, -1, -1, 1}, false},
		{"ratio just above threshold", []int64{-1, -1, -1, -1, -1, -1, 1}, true},
		{"noisy but dominated by decreases", []int64{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.IsDecreasing(tt.diffs))
		})
	}
}

// The documented example: 10 09 08 07 06 05 gives five -1 diffs with no
// increases, which both heuristics accept.
func TestCountdownExample(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	seq := []string{"10", "09", "08", "07", "06", "05"}
	diffs := Diffs(seq)
	require.Equal(t, []int64{-1, -1, -1, -1, -1}, diffs)

	assert.True(t, th.IsDecreasing(diffs))
	assert.True(t, th.IsDecreasingByMode(seq, diffs))
}

// A minute rollover rendered digit-wise (10:09 -> 09:59 shows "1009"
// then "0959"... here reduced to the two-field form "10","09","59")
// produces a +50 diff. That diff is a plain positive update: the
// exclusion set only ever applies to negative diffs.
func TestRolloverDiffCountsAsPositive(t *testing.T) {
	t.Parallel()

	seq := []string{"10", "09", "59"}
	diffs := Diffs(seq)
	require.Equal(t, []int64{-1, 50}, diffs)

	nNeg, nPos := countUpdates(diffs, DefaultThresholds().RolloverExclusions)
	assert.Equal(t, 1, nNeg)
	assert.Equal(t, 1, nPos)
}

func TestIsDecreasingByMode(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	tests := []struct {
		name string
		seq  []string
		want bool
	}{
		{
			"pure countdown passes",
			[]string{"10", "09", "08", "07", "06", "05"},
			true,
		},
		{
			// Only 4 distinct displayed values even though diffs qualify.
			"too few distinct values",
			[]string{"4", "3", "2", "1", "4", "3", "2", "1", "4", "3"},
			false,
		},
		{
			"empty sequence",
			nil,
			false,
		},
		{
			// Seven values, five -1 diffs plus one +10: mode is -1,
			// dominant negative occurs 5 times, 5 > 1.
			"single upward correction tolerated",
			[]string{"20", "19", "18", "17", "16", "15", "25"},
			true,
		},
		{
			// Mode is +1 (six occurrences vs five -2): dominant change is
			// an increase, so the sequence is not a countdown.
			"dominant positive mode fails",
			[]string{"10", "8", "9", "7", "8", "6", "7", "5", "6", "4", "5", "6"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffs := Diffs(tt.seq)
			assert.Equal(t, tt.want, th.IsDecreasingByMode(tt.seq, diffs))
		})
	}
}

// The two heuristics are deliberately divergent: the mode test accepts
// sequences the ratio test rejects. Nine -1s against four +1s has more
// decreases than increases and a negative dominant change, passing the
// mode test, but its 9/4 ratio is well under the ratio floor. The
// implication "mode test passes => ratio test passes" is therefore
// false, which is why a confirmed timer requires both.
func TestModeTestDoesNotImplyRatioTest(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	// 30/29 flapping five times then a clean run down to 25: nine -1
	// diffs against four +1 diffs over six distinct values.
	seq := []string{"30", "29", "30", "29", "30", "29", "30", "29", "30", "29", "28", "27", "26", "25"}
	diffs := Diffs(seq)

	nNeg, nPos := countUpdates(diffs, th.RolloverExclusions)
	require.Equal(t, 9, nNeg)
	require.Equal(t, 4, nPos)

	assert.True(t, th.IsDecreasingByMode(seq, diffs), "mode test should accept")
	assert.False(t, th.IsDecreasing(diffs), "ratio test should reject")
}

// Both heuristics are pure: identical input yields identical output.
func TestHeuristicsDeterministic(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	seqs := [][]string{
		{"10", "09", "08", "07", "06", "05"},
		{"10", "09", "10", "09", "10", "09", "08", "07", "06"},
		{"", "", ""},
		{"5", "4", "3", "2", "1", "0", "60", "59"},
	}
	for _, seq := range seqs {
		diffs := Diffs(seq)
		a1, a2 := th.IsDecreasing(diffs), th.IsDecreasing(diffs)
		b1, b2 := th.IsDecreasingByMode(seq, diffs), th.IsDecreasingByMode(seq, diffs)
		assert.Equal(t, a1, a2, "IsDecreasing unstable for %v", seq)
		assert.Equal(t, b1, b2, "IsDecreasingByMode unstable for %v", seq)
	}
}

func TestModeOfTieBreak(t *testing.T) {
	t.Parallel()

	// -1 and +1 both occur twice; -1 reaches two occurrences first, so
	// it wins the tie no matter how often the function is called.
	diffs := []int64{-1, 1, -1, 1}
	for i := 0; i < 10; i++ {
		val, count := modeOf(diffs)
		assert.Equal(t, int64(-1), val)
		assert.Equal(t, 2, count)
	}
}

func TestNegativeModeCountIgnoresPositives(t *testing.T) {
	t.Parallel()

	// +3 is the unrestricted mode, but the negative mode is -1 with two
	// occurrences.
	diffs := []int64{3, 3, 3, -1, -1, -2}
	assert.Equal(t, 2, negativeModeCount(diffs))

	assert.Equal(t, 0, negativeModeCount([]int64{1, 2, 3}))
	assert.Equal(t, 0, negativeModeCount(nil))
}

func TestClassify(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	t.Run("confirmed timer", func(t *testing.T) {
		g := Group{
			DigitSequence:   []string{"10", "09", "08", "07", "06", "05"},
			DistinctSeconds: 6,
		}
		c := th.Classify(g)
		assert.True(t, c.IsDecreasing)
		assert.True(t, c.IsDecreasingByMode)
		assert.True(t, c.SecondsGate)
		assert.True(t, c.IsTimer())
	})

	t.Run("seconds gate excludes compressed updates", func(t *testing.T) {
		// Heuristics pass but the updates span only 3 distinct seconds.
		g := Group{
			DigitSequence:   []string{"10", "09", "08", "07", "06", "05"},
			DistinctSeconds: 3,
		}
		c := th.Classify(g)
		assert.True(t, c.IsDecreasing)
		assert.True(t, c.IsDecreasingByMode)
		assert.False(t, c.SecondsGate)
		assert.False(t, c.IsTimer())
	})

	t.Run("empty digit group is never a timer", func(t *testing.T) {
		g := Group{
			DigitSequence:   []string{"", "", "", "", "", ""},
			DistinctSeconds: 6,
		}
		c := th.Classify(g)
		assert.False(t, c.IsDecreasing)
		assert.False(t, c.IsDecreasingByMode)
		assert.False(t, c.IsTimer())
	})

	t.Run("degenerate single observation", func(t *testing.T) {
		g := Group{DigitSequence: []string{"10"}, DistinctSeconds: 1}
		assert.False(t, th.Classify(g).IsTimer())
	})
}

func TestClassifyGroupsMatchesSerial(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	var groups []Group
	for i := 0; i < 200; i++ {
		seq := make([]string, 0, 8)
		for j := 8; j > i%8; j-- {
			seq = append(seq, strconv.Itoa(j))
		}
		groups = append(groups, Group{
			DigitSequence:   seq,
			DistinctSeconds: len(seq),
		})
	}

	results := th.ClassifyGroups(groups)
	require.Len(t, results, len(groups))
	for i, r := range results {
		assert.Equal(t, groups[i].DigitSequence, r.DigitSequence, "order must be preserved")
		assert.Equal(t, th.Classify(groups[i]), r.Classification, "parallel result must match serial classify")
	}
}

func TestClassifyGroupsEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, DefaultThresholds().ClassifyGroups(nil))
}
