package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return &DB{
		DB:           mockDB,
		logger:       zap.NewNop(),
		queryTimeout: 5 * time.Second,
	}, mock
}

func testUser() *models.User {
	now := time.Now()
	return &models.User{
		ID:           uuid.New(),
		Username:     "someuser",
		PasswordHash: "$2a$04$hashhashhashhashhashha",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userColumns() []string {
	return []string{"id", "username", "password_hash", "refresh_token", "created_at", "updated_at"}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts the row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		user := testUser()

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID, user.Username, user.PasswordHash, user.RefreshToken, user.CreatedAt, user.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, user)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation to duplicate username", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		user := testUser()

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, user)
		assert.ErrorIs(t, err, services.ErrDuplicateUsername)
	})

	t.Run("maps timeouts to unavailable", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		user := testUser()

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(context.DeadlineExceeded)

		err := repo.Create(ctx, user)
		assert.True(t, services.IsUnavailableError(err))
	})
}

func TestUserRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes the lookup", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		user := testUser()

		rows := sqlmock.NewRows(userColumns()).
			AddRow(user.ID, user.Username, user.PasswordHash, nil, user.CreatedAt, user.UpdatedAt)
		mock.ExpectQuery(`SELECT id, username, password_hash, refresh_token, created_at, updated_at`).
			WithArgs("someuser").
			WillReturnRows(rows)

		got, err := repo.GetByUsername(ctx, "  SomeUser  ")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.False(t, got.RefreshToken.Valid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing rows to user not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(`SELECT id, username, password_hash, refresh_token, created_at, updated_at`).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})
}

func TestUserRepository_RotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("succeeds when the stored value still matches", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec(`UPDATE users`).
			WithArgs(id, "old-token", "new-token").
			WillReturnResult(sqlmock.NewResult(0, 1))

		rotated, err := repo.RotateRefreshToken(ctx, id, "old-token", "new-token")
		require.NoError(t, err)
		assert.True(t, rotated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a lost race when no row matches", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec(`UPDATE users`).
			WithArgs(id, "stale-token", "new-token").
			WillReturnResult(sqlmock.NewResult(0, 0))

		rotated, err := repo.RotateRefreshToken(ctx, id, "stale-token", "new-token")
		require.NoError(t, err)
		assert.False(t, rotated)
	})
}

func TestUserRepository_ClearRefreshToken(t *testing.T) {
	ctx := context.Background()

	t.Run("clears the matching row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec(`UPDATE users`).
			WithArgs("some-token").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.ClearRefreshToken(ctx, "some-token")
		assert.NoError(t, err)
	})

	t.Run("matching no row is not an error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec(`UPDATE users`).
			WithArgs("unknown-token").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.ClearRefreshToken(ctx, "unknown-token")
		assert.NoError(t, err)
	})
}

func TestUserRepository_SetRefreshToken(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("stores the token", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec(`UPDATE users`).
			WithArgs(id, "fresh-token").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetRefreshToken(ctx, id, "fresh-token")
		assert.NoError(t, err)
	})

	t.Run("missing user is reported", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec(`UPDATE users`).
			WithArgs(id, "fresh-token").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetRefreshToken(ctx, id, "fresh-token")
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})
}
