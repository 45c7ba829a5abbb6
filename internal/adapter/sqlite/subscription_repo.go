package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// SaveSubscription inserts or replaces a subscription by channel id
func (s *Store) SaveSubscription(sub *domain.WatchSubscription) error {
	query := `
		INSERT INTO subscriptions (channel_id, folder_id, folder_name, root_id, resource_id, registered_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			folder_id = excluded.folder_id,
			folder_name = excluded.folder_name,
			root_id = excluded.root_id,
			resource_id = excluded.resource_id,
			registered_at = excluded.registered_at,
			expires_at = excluded.expires_at
	`

	_, err := s.db.Exec(query,
		sub.ID, sub.FolderID, sub.FolderName, sub.RootID, sub.ResourceID,
		toMillis(sub.RegisteredAt), toMillis(sub.ExpiresAt),
	)
	return err
}

// GetSubscription retrieves a subscription by channel id
func (s *Store) GetSubscription(channelID string) (*domain.WatchSubscription, error) {
	query := `
		SELECT channel_id, folder_id, folder_name, root_id, resource_id, registered_at, expires_at
		FROM subscriptions
		WHERE channel_id = ?
	`

	sub, err := scanSubscription(s.db.QueryRow(query, channelID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubscriptions returns every persisted subscription, soonest expiry first
func (s *Store) ListSubscriptions() ([]*domain.WatchSubscription, error) {
	query := `
		SELECT channel_id, folder_id, folder_name, root_id, resource_id, registered_at, expires_at
		FROM subscriptions
		ORDER BY expires_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.WatchSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// DeleteSubscription removes a subscription by channel id
func (s *Store) DeleteSubscription(channelID string) error {
	_, err := s.db.Exec("DELETE FROM subscriptions WHERE channel_id = ?", channelID)
	return err
}

// DeleteExpiredSubscriptions removes subscriptions that expired before the given time
func (s *Store) DeleteExpiredSubscriptions(before time.Time) (int, error) {
	result, err := s.db.Exec("DELETE FROM subscriptions WHERE expires_at < ?", toMillis(before))
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.WatchSubscription, error) {
	sub := &domain.WatchSubscription{}
	var registeredAt, expiresAt int64

	err := row.Scan(&sub.ID, &sub.FolderID, &sub.FolderName, &sub.RootID, &sub.ResourceID, &registeredAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	sub.RegisteredAt = fromMillis(registeredAt)
	sub.ExpiresAt = fromMillis(expiresAt)
	return sub, nil
}
