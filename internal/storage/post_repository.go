package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockso/blockso/internal/models"
	"github.com/jackc/pgx/v5"
)

// PostRepository handles post persistence for organic and derived posts.
type PostRepository struct {
	db *PostgresDB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *PostgresDB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts an organic post or repost/quote
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.Created.IsZero() {
		post.Created = time.Now().UTC()
	}

	query := `
		INSERT INTO posts (
			author_id, text, image_url, is_share, is_quote,
			ref_post_id, ref_tx_id, created
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.Pool().QueryRow(ctx, query,
		post.AuthorID,
		post.Text,
		post.ImageURL,
		post.IsShare,
		post.IsQuote,
		post.RefPostID,
		post.RefTxID,
		post.Created,
	).Scan(&post.ID)

	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// GetOrCreateDerived inserts a transaction-derived post unless one already
// exists for the same (author, referenced transaction). Reports whether a
// row was created.
func (r *PostRepository) GetOrCreateDerived(ctx context.Context, post *models.Post) (bool, error) {
	if post.RefTxID == nil {
		return false, fmt.Errorf("derived post requires a referenced transaction")
	}

	query := `
		INSERT INTO posts (
			author_id, text, image_url, is_share, is_quote,
			ref_post_id, ref_tx_id, created
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (author_id, ref_tx_id) WHERE ref_tx_id IS NOT NULL DO NOTHING
		RETURNING id
	`

	err := r.db.Pool().QueryRow(ctx, query,
		post.AuthorID,
		post.Text,
		post.ImageURL,
		post.IsShare,
		post.IsQuote,
		post.RefPostID,
		post.RefTxID,
		post.Created,
	).Scan(&post.ID)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("failed to create derived post: %w", err)
}

// GetByID retrieves a post by id
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `
		SELECT id, author_id, text, image_url, is_share, is_quote,
		       ref_post_id, ref_tx_id, created
		FROM posts
		WHERE id = $1
	`

	var p models.Post
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID, &p.AuthorID, &p.Text, &p.ImageURL, &p.IsShare, &p.IsQuote,
		&p.RefPostID, &p.RefTxID, &p.Created,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return &p, nil
}

// ListByAuthor returns the author's posts, newest first
func (r *PostRepository) ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*models.Post, error) {
	query := `
		SELECT id, author_id, text, image_url, is_share, is_quote,
		       ref_post_id, ref_tx_id, created
		FROM posts
		WHERE author_id = $1
		ORDER BY created DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryPosts(ctx, query, authorID, limit, offset)
}

// ListFeed returns posts authored by the profiles the given profile
// follows, newest first.
func (r *PostRepository) ListFeed(ctx context.Context, profileID int64, limit, offset int) ([]*models.Post, error) {
	query := `
		SELECT p.id, p.author_id, p.text, p.image_url, p.is_share, p.is_quote,
		       p.ref_post_id, p.ref_tx_id, p.created
		FROM posts p
		JOIN follows f ON f.dest_id = p.author_id
		WHERE f.src_id = $1
		ORDER BY p.created DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryPosts(ctx, query, profileID, limit, offset)
}

// CountByRefTx returns the number of posts referencing a transaction
func (r *PostRepository) CountByRefTx(ctx context.Context, txID int64) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT count(*) FROM posts WHERE ref_tx_id = $1`, txID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts by ref tx: %w", err)
	}
	return count, nil
}

func (r *PostRepository) queryPosts(ctx context.Context, query string, args ...interface{}) ([]*models.Post, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(
			&p.ID, &p.AuthorID, &p.Text, &p.ImageURL, &p.IsShare, &p.IsQuote,
			&p.RefPostID, &p.RefTxID, &p.Created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, &p)
	}

	return posts, rows.Err()
}
