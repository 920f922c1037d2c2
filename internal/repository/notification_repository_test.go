package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

func TestNotificationRepositoryInsertIfAbsent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	n := &models.Notification{
		ID: "n-1", TenantID: "tenant-1", RecipientUserID: "teacher-1",
		Type: models.NotificationTypeMarkingRequest, EntityType: models.ResourceMarkingRequest, EntityID: "mr-1",
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO notifications(.|\n)*ON CONFLICT \(tenant_id, type, entity_type, entity_id, recipient_user_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), nil, n)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(context.Background(), nil, n)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListUnread(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(`FROM notifications WHERE tenant_id = \$1 AND recipient_user_id = \$2 AND read_at IS NULL ORDER BY created_at DESC LIMIT 10 OFFSET 0`).
		WithArgs("tenant-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "recipient_user_id", "type", "title", "body", "entity_type", "entity_id", "read_at", "created_at"}).
			AddRow("n-1", "tenant-1", "teacher-1", "marking_request", "Marking request", "Grade essays", "marking_request", "mr-1", nil, time.Now()))

	list, err := repo.ListByRecipient(context.Background(), models.NotificationFilter{
		TenantID: "tenant-1", RecipientUserID: "teacher-1", UnreadOnly: true, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ReadAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE notifications SET read_at = \$1 WHERE tenant_id = \$2 AND id = \$3 AND read_at IS NULL`).
		WithArgs(now, "tenant-1", "n-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), nil, "tenant-1", "n-1", now)
	require.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
