package domain

import "math"

// MaxIntermediatePercent caps progress reported before a load has finished
// assembling, so subscribers never see 100 ahead of the result.
const MaxIntermediatePercent = 99

// LoadProgress is an immutable snapshot of one load's state
type LoadProgress struct {
	LoadID  string `json:"load_id"`
	URL     string `json:"url"`
	Loaded  int64  `json:"loaded"`
	Total   int64  `json:"total"`
	Percent int    `json:"percent"`
}

// Done returns true for the final event of a load
func (p LoadProgress) Done() bool {
	return p.Percent == 100
}

// Percent returns round(loaded/total*100) clamped to [0, 100].
// A zero total counts as complete.
func Percent(loaded, total int64) int {
	if total <= 0 {
		return 100
	}
	if loaded <= 0 {
		return 0
	}
	pct := int(math.Round(float64(loaded) / float64(total) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// IntermediateProgress builds a progress snapshot for a chunk that is not the
// last one of a load.
func IntermediateProgress(loadID, url string, loaded, total int64) LoadProgress {
	pct := Percent(loaded, total)
	if pct > MaxIntermediatePercent {
		pct = MaxIntermediatePercent
	}
	return LoadProgress{LoadID: loadID, URL: url, Loaded: loaded, Total: total, Percent: pct}
}

// CompleteProgress builds the final snapshot of a load of size bytes
func CompleteProgress(loadID, url string, size int64) LoadProgress {
	return LoadProgress{LoadID: loadID, URL: url, Loaded: size, Total: size, Percent: 100}
}
