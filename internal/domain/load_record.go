package domain

import "time"

// Load record status constants
const (
	LoadStatusRunning   = "running"
	LoadStatusCompleted = "completed"
	LoadStatusFailed    = "failed"
)

// LoadRecord is the persisted history entry of one fetch
type LoadRecord struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Name          string        `json:"name"`
	Status        string        `json:"status"`
	Strategy      Strategy      `json:"strategy,omitempty"`
	Size          int64         `json:"size"`
	ChunkSize     int64         `json:"chunk_size"`
	RangeRequests int           `json:"range_requests"`
	Checksum      string        `json:"checksum,omitempty"`
	CachePath     string        `json:"cache_path,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// NewLoadRecord starts a running record
func NewLoadRecord(id, url, name string, chunkSize int64) *LoadRecord {
	return &LoadRecord{
		ID:        id,
		URL:       url,
		Name:      name,
		Status:    LoadStatusRunning,
		ChunkSize: chunkSize,
		StartedAt: time.Now().UTC(),
	}
}

// MarkCompleted records a successful load
func (r *LoadRecord) MarkCompleted(result *LoadResult, cachePath, checksum string) {
	r.Status = LoadStatusCompleted
	r.Strategy = result.Strategy
	r.Size = result.Size()
	r.RangeRequests = result.RangeRequests
	r.CachePath = cachePath
	r.Checksum = checksum
	r.Error = ""
	r.Duration = time.Since(r.StartedAt)
}

// MarkFailed records a failed load
func (r *LoadRecord) MarkFailed(err error) {
	r.Status = LoadStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.Duration = time.Since(r.StartedAt)
}

// LoadStats summarizes load history
type LoadStats struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	TotalBytes int64          `json:"total_bytes"`
	ByStrategy map[string]int `json:"by_strategy"`
}
