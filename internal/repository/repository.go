package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mutabaahly/web/internal/model"
)

// ErrNotFound reports that the profile row does not exist. Callers
// treat it as "absent", never as a failure.
var ErrNotFound = errors.New("repository: profile not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	var (
		profile model.Profile
		role    *string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, full_name, email, avatar_url, role, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id)
	err := row.Scan(
		&profile.ID,
		&profile.FullName,
		&profile.Email,
		&profile.AvatarURL,
		&role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile, ErrNotFound
		}
		return profile, err
	}
	if role != nil {
		profile.Role = model.Role(*role)
	}
	return profile, nil
}

// GetProfileRole is the narrow single-column lookup used on every
// intercepted request; it deliberately avoids loading the full row.
func (s *Store) GetProfileRole(ctx context.Context, id string) (model.Role, error) {
	var role *string
	row := s.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, id)
	if err := row.Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if role == nil {
		return "", nil
	}
	return model.Role(*role), nil
}

// UpsertProfile creates the row on first sign-in and refreshes the
// provider-sourced fields afterwards. It never touches role; role
// selection is the only writer of that column.
func (s *Store) UpsertProfile(ctx context.Context, profile model.Profile) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, full_name, email, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    email = EXCLUDED.email,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = EXCLUDED.updated_at
	`, profile.ID, profile.FullName, profile.Email, profile.AvatarURL, now)
	return err
}

func (s *Store) UpdateProfileRole(ctx context.Context, id string, role model.Role) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles SET role = $1, updated_at = $2 WHERE id = $3
	`, string(role), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
