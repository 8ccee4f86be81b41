// Package timer groups preprocessed segment observations into
// candidate elements and classifies each one for countdown-like digit
// decrease.
package timer

// Thresholds carries the tunable classification parameters. These are
// process-wide configuration passed explicitly into the detector, never
// read from package state, so boundary values can be exercised in tests.
type Thresholds struct {
	// MinNegativeUpdates is the minimum count of genuine decreasing
	// updates a sequence needs before either heuristic will consider it.
	MinNegativeUpdates int

	// NegPosUpdateRatio is the ratio nNeg/nPos that a sequence with at
	// least one increase must strictly exceed to pass the ratio test.
	NegPosUpdateRatio float64

	// MinDistinctValues is the floor on distinct digit-string values the
	// mode test requires, guarding against too few genuine updates.
	MinDistinctValues int

	// MinDistinctSeconds is the reporting gate: updates must be spread
	// over at least this many distinct whole seconds.
	MinDistinctSeconds int

	// RolloverExclusions lists diff values excluded from the negative
	// count. The crawl heuristic this reimplements listed 59, 5 and 9 —
	// positive values a negative diff can never equal, so the historical
	// default excludes nothing in practice. Configure the signed values
	// (-59, -5, -9) to actually exclude rollover-sized decreases.
	RolloverExclusions []int64
}

// DefaultThresholds returns the thresholds used by the production
// detection runs, matching the historical crawl-analysis constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinNegativeUpdates: 5,
		NegPosUpdateRatio:  5,
		MinDistinctValues:  5,
		MinDistinctSeconds: 5,
		RolloverExclusions: []int64{59, 5, 9},
	}
}
