package port

import (
	"github.com/inkpress/assetloader/internal/domain/repository"
)

// LoadRepository is an alias to domain repository interface
type LoadRepository = repository.LoadRepository

// Store is an alias to domain repository interface
type Store = repository.Store
