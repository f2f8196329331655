package repository

// Store combines the repositories backed by one database
type Store interface {
	LoadRepository

	// Ping checks database connectivity
	Ping() error

	// Close closes the database connection
	Close() error
}
