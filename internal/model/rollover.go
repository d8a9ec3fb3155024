package model

// RolloverResult is the outcome of the renewal rollover computation.
type RolloverResult struct {
	Rollover int // credits that carry into the new cycle
	Expired  int // credits lost to the cap
}

// Rollover computes how many unused plan credits carry forward at
// renewal and how many expire. A cap of 0 means no rollover: all unused
// credits expire. Negative inputs are treated as zero.
func Rollover(unused, cap int) RolloverResult {
	if unused < 0 {
		unused = 0
	}
	if cap < 0 {
		cap = 0
	}
	r := unused
	if r > cap {
		r = cap
	}
	return RolloverResult{Rollover: r, Expired: unused - r}
}
