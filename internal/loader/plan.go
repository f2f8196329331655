package loader

import "fmt"

// Window is an inclusive byte range [Start, End] of a resource
type Window struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the window
func (w Window) Len() int64 {
	return w.End - w.Start + 1
}

// RangeHeader returns the value for the Range request header
func (w Window) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", w.Start, w.End)
}

// WindowCount returns how many windows of chunkSize bytes cover [0, total).
// Returns 0 when total or chunkSize is not positive.
func WindowCount(total, chunkSize int64) int64 {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	n := total / chunkSize
	if total%chunkSize != 0 {
		n++
	}
	return n
}

// WindowAt returns the i-th window of [0, total). The last window holds the
// remainder. i must be below WindowCount(total, chunkSize).
func WindowAt(i, total, chunkSize int64) Window {
	start := i * chunkSize
	end := total - 1
	if chunkSize <= end-start {
		end = start + chunkSize - 1
	}
	return Window{Start: start, End: end}
}
