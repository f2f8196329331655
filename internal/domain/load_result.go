package domain

// Strategy names the retrieval path a load ended up taking
type Strategy string

const (
	// StrategyRanged assembled the resource from 206 responses
	StrategyRanged Strategy = "ranged"
	// StrategyFallback used a single GET without Range
	StrategyFallback Strategy = "fallback"
	// StrategyShortCircuit used a single GET because the resource fit in one chunk
	StrategyShortCircuit Strategy = "short_circuit"
	// StrategyAcceptedWhole took a non-206 success inside the chunk loop as the full resource
	StrategyAcceptedWhole Strategy = "accepted_whole"
	// StrategyEmpty returned an empty buffer after probing a zero-length resource
	StrategyEmpty Strategy = "empty"
)

// LoadResult is the outcome of one chunked load
type LoadResult struct {
	// LoadID identifies the load on the progress channel
	LoadID string

	// Data is the assembled resource
	Data []byte

	// Total is the probed Content-Length, or len(Data) when no probe succeeded
	Total int64

	// Strategy is the path that produced Data
	Strategy Strategy

	// RangeRequests counts ranged GETs issued, including an abandoned one
	RangeRequests int

	// FallbackReason explains why the ranged path was not used, if it wasn't
	FallbackReason string
}

// Size returns the number of bytes in the assembled resource
func (r *LoadResult) Size() int64 {
	return int64(len(r.Data))
}
