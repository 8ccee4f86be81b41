package timer

import (
	"runtime"
	"strconv"
	"sync"
)

// Classification is the per-group verdict of the two decrease
// heuristics plus the timestamp-spread gate.
type Classification struct {
	IsDecreasing       bool `json:"is_decreasing"`
	IsDecreasingByMode bool `json:"is_decreasing_by_mode"`
	SecondsGate        bool `json:"seconds_gate"`
}

// IsTimer reports whether the group is a confirmed countdown timer:
// both heuristics and the gate must agree.
func (c Classification) IsTimer() bool {
	return c.IsDecreasing && c.IsDecreasingByMode && c.SecondsGate
}

// Diffs parses each digit string as a non-negative integer and returns
// the differences between consecutive parseable values. Empty or
// unparseable entries (including values overflowing int64) are treated
// as absent and skipped, so a single bad snapshot never aborts the
// sequence. Fewer than two parseable values yield an empty result.
func Diffs(seq []string) []int64 {
	var diffs []int64
	var prev int64
	have := false
	for _, s := range seq {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		if have {
			diffs = append(diffs, v-prev)
		}
		prev = v
		have = true
	}
	return diffs
}

// countUpdates tallies the strictly negative diffs (minus any listed
// exclusions) and the strictly positive diffs. The exclusion check
// compares the raw diff value, not its absolute value; see
// Thresholds.RolloverExclusions for why the default set is inert.
func countUpdates(diffs, exclusions []int64) (nNeg, nPos int) {
	for _, d := range diffs {
		switch {
		case d < 0:
			if !containsInt64(exclusions, d) {
				nNeg++
			}
		case d > 0:
			nPos++
		}
	}
	return nNeg, nPos
}

func containsInt64(vals []int64, v int64) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// modeOf returns the most frequent value in diffs and its occurrence
// count. Ties resolve to whichever value reached the winning count
// first in sequence order, which is deterministic for a given sequence.
func modeOf(diffs []int64) (val int64, count int) {
	counts := make(map[int64]int, len(diffs))
	for _, d := range diffs {
		counts[d]++
		if counts[d] > count {
			count = counts[d]
			val = d
		}
	}
	return val, count
}

// negativeModeCount returns the occurrence count of the most frequent
// strictly negative diff. This is a separate mode computation over the
// negative subset only, not a reuse of the unrestricted mode.
func negativeModeCount(diffs []int64) int {
	var negs []int64
	for _, d := range diffs {
		if d < 0 {
			negs = append(negs, d)
		}
	}
	_, count := modeOf(negs)
	return count
}

// IsDecreasing is the ratio test: the sequence must contain at least
// MinNegativeUpdates genuine decreases, and any increases must be
// outnumbered strictly more than NegPosUpdateRatio to one.
func (t Thresholds) IsDecreasing(diffs []int64) bool {
	if len(diffs) == 0 {
		return false
	}
	nNeg, nPos := countUpdates(diffs, t.RolloverExclusions)
	if nNeg < t.MinNegativeUpdates {
		return false
	}
	if nPos == 0 {
		return true
	}
	return float64(nNeg)/float64(nPos) > t.NegPosUpdateRatio
}

// IsDecreasingByMode is the stricter mode test: beyond the ratio
// test's count floor it requires enough distinct displayed values, a
// non-increasing dominant change, a dominant negative change occurring
// at least MinNegativeUpdates times, and more decreases than increases.
// seq is the full digit sequence the diffs were extracted from.
func (t Thresholds) IsDecreasingByMode(seq []string, diffs []int64) bool {
	if len(diffs) == 0 {
		return false
	}
	if distinctStrings(seq) < t.MinDistinctValues {
		return false
	}
	nNeg, nPos := countUpdates(diffs, t.RolloverExclusions)
	if nNeg < t.MinNegativeUpdates {
		return false
	}
	if nPos == 0 {
		return true
	}
	if mode, _ := modeOf(diffs); mode > 0 {
		return false
	}
	if negativeModeCount(diffs) < t.MinNegativeUpdates {
		return false
	}
	return nNeg > nPos
}

func distinctStrings(seq []string) int {
	seen := make(map[string]struct{}, len(seq))
	for _, s := range seq {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// Classify runs both heuristics and the timestamp gate over one group.
// It is a pure function of the group and thresholds.
func (t Thresholds) Classify(g Group) Classification {
	diffs := Diffs(g.DigitSequence)
	return Classification{
		IsDecreasing:       t.IsDecreasing(diffs),
		IsDecreasingByMode: t.IsDecreasingByMode(g.DigitSequence, diffs),
		SecondsGate:        g.DistinctSeconds >= t.MinDistinctSeconds,
	}
}

// Result pairs a group with its classification.
type Result struct {
	Group
	Classification
}

// ClassifyGroups classifies every group, fanning the work out across a
// bounded set of workers. Groups are independent, so only the result
// positions are shared; output order matches input order.
func (t Thresholds) ClassifyGroups(groups []Group) []Result {
	results := make([]Result, len(groups))
	workers := runtime.NumCPU()
	if workers > len(groups) {
		workers = len(groups)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	work := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i] = Result{
					Group:          groups[i],
					Classification: t.Classify(groups[i]),
				}
			}
		}()
	}
	for i := range groups {
		work <- i
	}
	close(work)
	wg.Wait()

	return results
}
