package port

import (
	"github.com/vertextoedge/drive-mirror/internal/domain/repository"
)

// SubscriptionRepository is an alias to domain repository interface
type SubscriptionRepository = repository.SubscriptionRepository

// SyncRunRepository is an alias to domain repository interface
type SyncRunRepository = repository.SyncRunRepository

// Store is an alias to domain repository interface
type Store = repository.Store

// RunRecord is an alias to the persisted sync run summary
type RunRecord = repository.RunRecord
