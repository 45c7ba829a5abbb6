package repository

import (
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// SubscriptionRepository persists watch subscriptions so channels
// registered before a restart still map to their folder.
type SubscriptionRepository interface {
	// SaveSubscription inserts or replaces a subscription by channel id
	SaveSubscription(sub *domain.WatchSubscription) error

	// GetSubscription retrieves a subscription by channel id, nil if absent
	GetSubscription(channelID string) (*domain.WatchSubscription, error)

	// ListSubscriptions returns every persisted subscription
	ListSubscriptions() ([]*domain.WatchSubscription, error)

	// DeleteSubscription removes a subscription by channel id
	DeleteSubscription(channelID string) error

	// DeleteExpiredSubscriptions removes subscriptions that expired before the given time
	DeleteExpiredSubscriptions(before time.Time) (int, error)
}
