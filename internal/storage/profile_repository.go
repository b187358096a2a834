package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockso/blockso/internal/chain"
	"github.com/blockso/blockso/internal/models"
	"github.com/jackc/pgx/v5"
)

// ProfileRepository handles profile identity persistence. Profiles are
// looked up by normalized address and created on first reference.
type ProfileRepository struct {
	db *PostgresDB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *PostgresDB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetOrCreate returns the profile for the given address, creating it if it
// does not exist. The address is checksum-normalized before use.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, address string) (*models.Profile, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO profiles (address, created_at)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
		RETURNING id, address, bio, image_url, last_login, created_at
	`

	var p models.Profile
	err = r.db.Pool().QueryRow(ctx, query, normalized, time.Now().UTC()).Scan(
		&p.ID, &p.Address, &p.Bio, &p.ImageURL, &p.LastLogin, &p.CreatedAt,
	)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return r.GetByAddress(ctx, normalized)
}

// GetByAddress retrieves a profile by normalized address
func (r *ProfileRepository) GetByAddress(ctx context.Context, address string) (*models.Profile, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, address, bio, image_url, last_login, created_at
		FROM profiles
		WHERE address = $1
	`

	var p models.Profile
	err = r.db.Pool().QueryRow(ctx, query, normalized).Scan(
		&p.ID, &p.Address, &p.Bio, &p.ImageURL, &p.LastLogin, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

// WatchedAddresses returns the addresses that should be kept fresh by the
// notification pipeline: profiles that have logged in, have followers, or
// are surfaced on a feed that has followers.
func (r *ProfileRepository) WatchedAddresses(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT p.address
		FROM profiles p
		WHERE p.last_login IS NOT NULL
		   OR EXISTS (SELECT 1 FROM follows f WHERE f.dest_id = p.id)
		   OR EXISTS (
		        SELECT 1
		        FROM feed_profiles fp
		        JOIN feed_followers ff ON ff.feed_id = fp.feed_id
		        WHERE fp.profile_id = p.id
		   )
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query watched addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan watched address: %w", err)
		}
		addresses = append(addresses, address)
	}

	return addresses, rows.Err()
}

// IsWatched reports whether the given address is on the watched set
func (r *ProfileRepository) IsWatched(ctx context.Context, address string) (bool, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return false, err
	}

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM profiles p
			WHERE p.address = $1
			  AND (p.last_login IS NOT NULL
			       OR EXISTS (SELECT 1 FROM follows f WHERE f.dest_id = p.id)
			       OR EXISTS (
			            SELECT 1
			            FROM feed_profiles fp
			            JOIN feed_followers ff ON ff.feed_id = fp.feed_id
			            WHERE fp.profile_id = p.id
			       ))
		)
	`

	var watched bool
	if err := r.db.Pool().QueryRow(ctx, query, normalized).Scan(&watched); err != nil {
		return false, fmt.Errorf("failed to check watched address: %w", err)
	}
	return watched, nil
}

// RecordLogin stamps the profile's last login time, creating the profile
// if needed.
func (r *ProfileRepository) RecordLogin(ctx context.Context, address string) (*models.Profile, error) {
	profile, err := r.GetOrCreate(ctx, address)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.Pool().Exec(ctx,
		`UPDATE profiles SET last_login = $1 WHERE id = $2`, now, profile.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	profile.LastLogin = &now
	return profile, nil
}
