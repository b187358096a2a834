package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockso/blockso/internal/models"
	"github.com/google/uuid"
)

// NotificationRepository handles notification persistence.
type NotificationRepository struct {
	db *PostgresDB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *PostgresDB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification, assigning an id and creation time if unset
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Created.IsZero() {
		n.Created = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, profile_id, event, actor_id, post_id, viewed, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		n.ID, n.ProfileID, n.Event, n.ActorID, n.PostID, n.Viewed, n.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByProfile returns a profile's notifications, newest first
func (r *NotificationRepository) ListByProfile(ctx context.Context, profileID int64, limit, offset int) ([]*models.Notification, error) {
	query := `
		SELECT id, profile_id, event, actor_id, post_id, viewed, created
		FROM notifications
		WHERE profile_id = $1
		ORDER BY created DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, profileID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.ProfileID, &n.Event, &n.ActorID, &n.PostID, &n.Viewed, &n.Created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// UnviewedCount returns the number of unviewed notifications for a profile
func (r *NotificationRepository) UnviewedCount(ctx context.Context, profileID int64) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE profile_id = $1 AND viewed = false`,
		profileID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkViewed marks a notification as viewed
func (r *NotificationRepository) MarkViewed(ctx context.Context, id string, profileID int64) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE notifications SET viewed = true WHERE id = $1 AND profile_id = $2`,
		id, profileID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification viewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// ErrNotificationNotFound reports a missing notification on MarkViewed
var ErrNotificationNotFound = errors.New("notification not found")
