package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"analyticsadmin/internal/domain"
)

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) domain.UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, name, trial_expiry_date, grace_period, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	u := &domain.User{}
	var name sql.NullString
	var trial sql.NullTime
	var grace []byte
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &name, &trial, &grace, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	u.Name = name.String
	if trial.Valid {
		d := domain.Date(trial.Time)
		u.TrialExpiryDate = &d
	}
	if len(grace) > 0 {
		gp := &domain.GracePeriod{}
		if err := json.Unmarshal(grace, gp); err != nil {
			return nil, fmt.Errorf("decode grace period: %w", err)
		}
		u.GracePeriod = gp
	}
	return u, nil
}

func (r *userRepository) UpdateTrialExpiry(ctx context.Context, userID string, date *time.Time) error {
	query := `UPDATE users SET trial_expiry_date = $2, updated_at = NOW() WHERE id = $1`
	var arg sql.NullTime
	if date != nil {
		arg = sql.NullTime{Time: domain.Date(*date), Valid: true}
	}
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, userID, arg)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) UpdateGracePeriod(ctx context.Context, userID string, gp *domain.GracePeriod) error {
	query := `UPDATE users SET grace_period = $2, updated_at = NOW() WHERE id = $1`
	var arg any
	if gp != nil {
		b, err := json.Marshal(gp)
		if err != nil {
			return fmt.Errorf("encode grace period: %w", err)
		}
		arg = string(b)
	}
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, userID, arg)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
