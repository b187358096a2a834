package feed

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/blockso/blockso/internal/chain"
	"github.com/blockso/blockso/internal/logging"
	"github.com/blockso/blockso/internal/models"
	"github.com/blockso/blockso/internal/types"
)

// ProfileStore is the subset of the profile repository the deriver needs.
type ProfileStore interface {
	GetOrCreate(ctx context.Context, address string) (*models.Profile, error)
}

// PostStore is the subset of the post repository the deriver needs.
type PostStore interface {
	GetOrCreateDerived(ctx context.Context, post *models.Post) (bool, error)
}

// NotificationStore is the subset of the notification repository the
// deriver needs.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Deriver turns stored transactions into feed posts and notifications.
// At most one post exists per (author, transaction) pair; the zero address
// is never an author.
type Deriver struct {
	profiles      ProfileStore
	posts         PostStore
	notifications NotificationStore
	logger        *logging.Logger
}

// NewDeriver creates a post deriver.
func NewDeriver(profiles ProfileStore, posts PostStore, notifications NotificationStore) *Deriver {
	return &Deriver{
		profiles:      profiles,
		posts:         posts,
		notifications: notifications,
		logger:        logging.GetGlobalLogger().WithField("component", "deriver"),
	}
}

// DeriveFromHistory creates at most one post for the requested address from
// an imported transaction. The address qualifies as author when it is the
// transaction sender, or the sender of any of its token transfers.
func (d *Deriver) DeriveFromHistory(ctx context.Context, tx *models.Transaction, erc20 []*models.ERC20Transfer, erc721 []*models.ERC721Transfer, address string) (*models.Post, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return nil, err
	}

	if chain.IsZero(normalized) {
		return nil, nil
	}

	if strings.EqualFold(tx.FromAddress, normalized) {
		return d.createPost(ctx, normalized, tx, "")
	}

	for _, transfer := range erc20 {
		if strings.EqualFold(transfer.FromAddress, normalized) {
			text := transferText(transfer.Amount, transfer.Decimals, transfer.ContractTicker)
			return d.createPost(ctx, normalized, tx, text)
		}
	}

	for _, transfer := range erc721 {
		if strings.EqualFold(transfer.FromAddress, normalized) {
			return d.createPost(ctx, normalized, tx, "")
		}
	}

	return nil, nil
}

// DeriveFromActivity creates posts for each transaction participant. The
// zero address is skipped; a failure for one participant does not stop the
// others.
func (d *Deriver) DeriveFromActivity(ctx context.Context, tx *models.Transaction, participants []string) error {
	var firstErr error
	for _, address := range participants {
		if address == "" {
			continue
		}
		normalized, err := chain.Normalize(address)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if chain.IsZero(normalized) {
			continue
		}
		if _, err := d.createPost(ctx, normalized, tx, ""); err != nil {
			d.logger.WithError(err).WithField("address", normalized).Error("Failed to derive post")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// createPost gets or creates the author profile and the derived post, and
// emits a notification when a new post appears.
func (d *Deriver) createPost(ctx context.Context, author string, tx *models.Transaction, text string) (*models.Post, error) {
	profile, err := d.profiles.GetOrCreate(ctx, author)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve author profile: %w", err)
	}

	post := &models.Post{
		AuthorID: profile.ID,
		Text:     text,
		RefTxID:  &tx.ID,
		Created:  tx.BlockSignedAt,
	}

	created, err := d.posts.GetOrCreateDerived(ctx, post)
	if err != nil {
		return nil, err
	}
	if !created {
		return post, nil
	}

	if d.notifications != nil {
		notification := &models.Notification{
			ProfileID: profile.ID,
			Event:     types.EventMentionedInPost,
			PostID:    &post.ID,
		}
		if err := d.notifications.Create(ctx, notification); err != nil {
			// The post exists; a lost notification is not worth failing the import.
			d.logger.WithError(err).WithField("post_id", post.ID).Warn("Failed to create notification")
		}
	}

	return post, nil
}

// transferText renders a token transfer as post text, scaling the raw
// amount by the token's decimals.
func transferText(amount string, decimals int, ticker string) string {
	formatted := FormatTokenAmount(amount, decimals)
	if ticker == "" {
		return fmt.Sprintf("Sent %s", formatted)
	}
	return fmt.Sprintf("Sent %s %s", formatted, ticker)
}

// FormatTokenAmount converts a raw integer token amount into its decimal
// representation, trimming trailing zeros. Invalid input is returned as is.
func FormatTokenAmount(amount string, decimals int) string {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || decimals < 0 {
		return amount
	}
	if decimals == 0 {
		return value.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(value, divisor, new(big.Int))

	fracStr := frac.Abs(frac).String()
	if len(fracStr) < decimals {
		fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return whole.String()
	}
	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}
