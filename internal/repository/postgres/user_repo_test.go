package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"analyticsadmin/internal/domain"
)

var userCols = []string{"id", "email", "name", "trial_expiry_date", "grace_period", "created_at", "updated_at"}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trial := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		check   func(t *testing.T, u *domain.User)
		wantErr bool
		errIs   error
	}{
		{
			name: "with trial and grace period",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, email, name, trial_expiry_date, grace_period, created_at, updated_at`).
					WithArgs("user-1").
					WillReturnRows(sqlmock.NewRows(userCols).AddRow(
						"user-1", "alice@example.com", "Alice", trial,
						[]byte(`{"end_date":"2026-03-05T00:00:00Z","is_over":false,"allowance_required":10000}`),
						now, now,
					))
			},
			check: func(t *testing.T, u *domain.User) {
				require.Equal(t, "Alice", u.Name)
				require.NotNil(t, u.TrialExpiryDate)
				require.Equal(t, trial, *u.TrialExpiryDate)
				require.NotNil(t, u.GracePeriod)
				require.Equal(t, 10000, u.GracePeriod.AllowanceRequired)
				require.False(t, u.GracePeriod.IsOver)
			},
		},
		{
			name: "nullable columns empty",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM users`).
					WithArgs("user-1").
					WillReturnRows(sqlmock.NewRows(userCols).AddRow("user-1", "bob@example.com", nil, nil, nil, now, now))
			},
			check: func(t *testing.T, u *domain.User) {
				require.Empty(t, u.Name)
				require.Nil(t, u.TrialExpiryDate)
				require.Nil(t, u.GracePeriod)
			},
		},
		{
			name: "not found",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM users`).WillReturnError(sql.ErrNoRows)
			},
			wantErr: true,
			errIs:   domain.ErrUserNotFound,
		},
		{
			name: "id is not a uuid",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM users`).
					WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
			},
			wantErr: true,
			errIs:   domain.ErrUserNotFound,
		},
		{
			name: "corrupt grace period",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM users`).
					WillReturnRows(sqlmock.NewRows(userCols).AddRow("user-1", "a@b.com", nil, nil, []byte(`{`), now, now))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			u, err := NewUserRepository(db).GetByID(ctx, "user-1")
			if tt.wantErr {
				require.Error(t, err)
				if tt.errIs != nil {
					require.ErrorIs(t, err, tt.errIs)
				}
			} else {
				require.NoError(t, err)
				tt.check(t, u)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_UpdateTrialExpiry(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 9, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		date  *time.Time
		mock  func(mock sqlmock.Sqlmock)
		errIs error
	}{
		{
			name: "truncates to the day",
			date: &day,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE users SET trial_expiry_date = \$2`).
					WithArgs("user-1", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "clears the trial",
			date: nil,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE users SET trial_expiry_date = \$2`).
					WithArgs("user-1", nil).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "not found",
			date: &day,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE users`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			errIs: domain.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			err = NewUserRepository(db).UpdateTrialExpiry(ctx, "user-1", tt.date)
			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_UpdateGracePeriod(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET grace_period = \$2`).
		WithArgs("user-1", `{"end_date":"2026-03-05T00:00:00Z","is_over":true}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET grace_period = \$2`).
		WithArgs("user-1", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepository(db)
	gp := &domain.GracePeriod{EndDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), IsOver: true}
	require.NoError(t, repo.UpdateGracePeriod(context.Background(), "user-1", gp))
	require.NoError(t, repo.UpdateGracePeriod(context.Background(), "user-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
