package repository

import (
	"time"

	"github.com/inkpress/assetloader/internal/domain"
)

// LoadRepository defines persistence operations for load history
type LoadRepository interface {
	// Create inserts a new load record
	Create(record *domain.LoadRecord) error

	// Update stores the final state of a load record
	Update(record *domain.LoadRecord) error

	// Get retrieves a record by ID. Returns domain.ErrNotFound if absent.
	Get(id string) (*domain.LoadRecord, error)

	// List returns the most recent records, newest first
	List(limit int) ([]*domain.LoadRecord, error)

	// Stats summarizes all stored records
	Stats() (*domain.LoadStats, error)

	// DeleteOlderThan removes records started before now-age
	// Returns the number of records deleted
	DeleteOlderThan(age time.Duration) (int, error)
}
