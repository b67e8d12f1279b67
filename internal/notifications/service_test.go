package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/pagination"
)

// inboxRepo serves list and mark calls from canned values.
type inboxRepo struct {
	rows     []models.Notification
	next     *pagination.Cursor
	unread   int64
	mark     notificationMarkResult
	marked   int64
	err      error
	countErr error

	lastList listNotificationsParams
}

func (r *inboxRepo) WithTx(*gorm.DB) Repository                         { return r }
func (r *inboxRepo) Create(context.Context, *models.Notification) error { return r.err }
func (r *inboxRepo) FindByID(context.Context, uuid.UUID) (*models.Notification, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *inboxRepo) List(_ context.Context, p listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	r.lastList = p
	return r.rows, r.next, r.err
}

func (r *inboxRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID, time.Time) (notificationMarkResult, error) {
	return r.mark, r.err
}

func (r *inboxRepo) MarkAllRead(context.Context, uuid.UUID, time.Time) (int64, error) {
	return r.marked, r.err
}

func (r *inboxRepo) CountUnread(context.Context, uuid.UUID) (int64, error) {
	return r.unread, r.countErr
}

func (r *inboxRepo) DeleteExpired(context.Context, *gorm.DB, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func newInbox(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc
}

func TestListReturnsPageCursorAndUnreadCount(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}
	repo := &inboxRepo{
		rows:   []models.Notification{first},
		next:   &pagination.Cursor{CreatedAt: first.CreatedAt, ID: first.ID},
		unread: 4,
	}
	userID := uuid.New()

	result, err := newInbox(t, repo).List(context.Background(), ListParams{UserID: userID, Limit: 1, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.EqualValues(t, 4, result.UnreadCount)
	require.Equal(t, userID, repo.lastList.UserID)
	require.True(t, repo.lastList.UnreadOnly)

	decoded, err := pagination.ParseCursor(result.Cursor)
	require.NoError(t, err)
	require.Equal(t, first.ID, decoded.ID)
}

func TestListEmptyInboxIsNotNil(t *testing.T) {
	result, err := newInbox(t, &inboxRepo{}).List(context.Background(), ListParams{UserID: uuid.New()})
	require.NoError(t, err)
	require.NotNil(t, result.Items)
	require.Empty(t, result.Cursor)
}

func TestListRejectsBadInput(t *testing.T) {
	svc := newInbox(t, &inboxRepo{})

	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListParams{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListSurfacesCountFailure(t *testing.T) {
	svc := newInbox(t, &inboxRepo{countErr: errors.New("timeout")})
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestMarkRead(t *testing.T) {
	found := newInbox(t, &inboxRepo{mark: notificationMarkResult{Found: true}})
	require.NoError(t, found.MarkRead(context.Background(), uuid.New(), uuid.New()))

	missing := newInbox(t, &inboxRepo{})
	err := missing.MarkRead(context.Background(), uuid.New(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = found.MarkRead(context.Background(), uuid.New(), uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkAllRead(t *testing.T) {
	n, err := newInbox(t, &inboxRepo{marked: 3}).MarkAllRead(context.Background(), uuid.New())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	_, err = newInbox(t, &inboxRepo{err: errors.New("boom")}).MarkAllRead(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
