package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

const notificationColumns = `id, tenant_id, recipient_user_id, type, title, body, entity_type, entity_id, read_at, created_at`

// NotificationRepository persists notifications. A unique index on
// (tenant_id, type, entity_type, entity_id, recipient_user_id) makes delivery idempotent.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertIfAbsent stores n unless the recipient already holds one for the same source.
// It reports whether a row was written.
func (r *NotificationRepository) InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) (bool, error) {
	const query = `INSERT INTO notifications
	(id, tenant_id, recipient_user_id, type, title, body, entity_type, entity_id, read_at, created_at)
	VALUES (:id, :tenant_id, :recipient_user_id, :type, :title, :body, :entity_type, :entity_id, :read_at, :created_at)
	ON CONFLICT (tenant_id, type, entity_type, entity_id, recipient_user_id) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, n)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check notification rows: %w", err)
	}
	return rows > 0, nil
}

// ListRecipientsForEntity returns recipients already notified about an entity.
func (r *NotificationRepository) ListRecipientsForEntity(ctx context.Context, tenantID string, notificationType models.NotificationType, entityType, entityID string) ([]string, error) {
	const query = `SELECT recipient_user_id FROM notifications
WHERE tenant_id = $1 AND type = $2 AND entity_type = $3 AND entity_id = $4 ORDER BY recipient_user_id`
	var recipients []string
	if err := r.db.SelectContext(ctx, &recipients, query, tenantID, notificationType, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list notification recipients: %w", err)
	}
	return recipients, nil
}

// ListByRecipient returns a user's inbox, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id = $1 AND recipient_user_id = $2`)
	if filter.UnreadOnly {
		builder.WriteString(" AND read_at IS NULL")
	}
	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset))

	var list []models.Notification
	if err := r.db.SelectContext(ctx, &list, builder.String(), filter.TenantID, filter.RecipientUserID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// GetByID fetches a notification scoped to the tenant.
func (r *NotificationRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id = $1 AND id = $2`
	var n models.Notification
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &n, query, tenantID, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkRead stamps read_at once. It returns sql.ErrNoRows when the notification was already read.
func (r *NotificationRepository) MarkRead(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, at time.Time) error {
	const query = `UPDATE notifications SET read_at = $1 WHERE tenant_id = $2 AND id = $3 AND read_at IS NULL`
	result, err := pick(r.db, exec).ExecContext(ctx, query, at, tenantID, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification read rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
