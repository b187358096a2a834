package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blockso/blockso/internal/adapter"
	"github.com/blockso/blockso/internal/chain"
	"github.com/blockso/blockso/internal/errors"
	"github.com/blockso/blockso/internal/logging"
	"github.com/blockso/blockso/internal/models"
	"github.com/blockso/blockso/internal/types"
)

// HistoryPager fetches one page of an address' transaction history.
type HistoryPager interface {
	FetchPage(ctx context.Context, address string, pageNumber int) (*adapter.PageResult, error)
}

// TransactionStore is the subset of the transaction repository the
// importers need.
type TransactionStore interface {
	GetOrCreate(ctx context.Context, tx *models.Transaction) (bool, error)
	GetOrCreateERC20(ctx context.Context, transfer *models.ERC20Transfer) (bool, error)
	GetOrCreateERC721(ctx context.Context, transfer *models.ERC721Transfer) (bool, error)
	ExistsByHash(ctx context.Context, txHash string) (bool, error)
	DeleteByHash(ctx context.Context, txHash string) error
}

// PostDeriver derives feed posts from stored transactions.
type PostDeriver interface {
	DeriveFromHistory(ctx context.Context, tx *models.Transaction, erc20 []*models.ERC20Transfer, erc721 []*models.ERC721Transfer, address string) (*models.Post, error)
	DeriveFromActivity(ctx context.Context, tx *models.Transaction, participants []string) error
}

// HistoryResult summarizes one import run. NextUpdateAt carries the
// provider's freshness hint so the caller can schedule a refresh.
type HistoryResult struct {
	Scanned      int
	Created      int
	Failed       int
	NextUpdateAt time.Time
}

// History imports an address' past transactions by paging through the
// Covalent history API, newest first.
type History struct {
	client   HistoryPager
	txs      TransactionStore
	deriver  PostDeriver
	maxPages int
	logger   *logging.Logger
}

// NewHistory creates a poll-based history importer. maxPages bounds how
// deep a single run pages into an address' history.
func NewHistory(client HistoryPager, txs TransactionStore, deriver PostDeriver, maxPages int) *History {
	if maxPages <= 0 {
		maxPages = 10
	}
	return &History{
		client:   client,
		txs:      txs,
		deriver:  deriver,
		maxPages: maxPages,
		logger:   logging.GetGlobalLogger().WithField("component", "history_importer"),
	}
}

// Import fetches and stores the transaction history of an address. A
// non-positive limit means no item limit; paging always stops at the page
// cap. Items that fail the origin filter or already exist are skipped. A
// page fetch or item processing failure keeps the rows stored so far but
// returns an import failure, so the run is never recorded as complete.
func (h *History) Import(ctx context.Context, address string, limit int) (*HistoryResult, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{}
	var lastItemErr error

pages:
	for page := 0; page < h.maxPages; page++ {
		pageResult, err := h.client.FetchPage(ctx, normalized, page)
		if err != nil {
			h.logger.WithError(err).WithFields(map[string]interface{}{
				"address": normalized,
				"page":    page,
			}).Error("History page fetch failed")
			return result, errors.NewImportFailureError("covalent", err)
		}
		if !pageResult.NextUpdateAt.IsZero() {
			result.NextUpdateAt = pageResult.NextUpdateAt
		}

		for i := range pageResult.Items {
			result.Scanned++
			created, err := h.processItem(ctx, &pageResult.Items[i], normalized)
			if err != nil {
				h.logger.WithError(err).WithFields(map[string]interface{}{
					"address": normalized,
					"tx_hash": pageResult.Items[i].TxHash,
				}).Error("Failed to process history item")
				result.Failed++
				lastItemErr = err
				continue
			}
			if created {
				result.Created++
			}
			if limit > 0 && result.Scanned >= limit {
				break pages
			}
		}

		if !pageResult.HasMore {
			break
		}
	}

	if result.Failed > 0 {
		return result, errors.NewImportFailureError("covalent",
			fmt.Errorf("%d of %d history items failed, last error: %w", result.Failed, result.Scanned, lastItemErr))
	}
	return result, nil
}

// processItem stores one history item and derives its post. Reports whether
// a new transaction row was created.
func (h *History) processItem(ctx context.Context, item *adapter.CovalentTransaction, address string) (bool, error) {
	if !h.originMatches(item, address) {
		return false, nil
	}

	toAddress := types.ZeroAddress
	if item.ToAddress != nil {
		toAddress = *item.ToAddress
	}

	tx := &models.Transaction{
		ChainID:       types.ChainEthereum,
		TxHash:        item.TxHash,
		BlockSignedAt: item.BlockSignedAt,
		TxOffset:      item.TxOffset,
		Successful:    item.Successful,
		FromAddress:   item.FromAddress,
		ToAddress:     toAddress,
		Value:         item.Value,
	}

	created, err := h.txs.GetOrCreate(ctx, tx)
	if err != nil {
		return false, err
	}
	if !created {
		// Seen before, its transfers and posts exist already.
		return false, nil
	}

	erc20, erc721, err := h.createTransfers(ctx, tx, item)
	if err != nil {
		return true, err
	}

	if _, err := h.deriver.DeriveFromHistory(ctx, tx, erc20, erc721, address); err != nil {
		return true, err
	}

	return true, nil
}

// originMatches reports whether the requested address originated the
// transaction or any of its decoded token transfers. Items that match
// neither are treated as spam.
func (h *History) originMatches(item *adapter.CovalentTransaction, address string) bool {
	if strings.EqualFold(item.FromAddress, address) {
		return true
	}
	for _, event := range item.LogEvents {
		decoded := event.Decoded
		if decoded == nil || len(decoded.Params) < 1 {
			continue
		}
		if decoded.Signature != adapter.ERC20TransferSignature &&
			decoded.Signature != adapter.ERC721TransferSignature {
			continue
		}
		if strings.EqualFold(decoded.Params[0].Value, address) {
			return true
		}
	}
	return false
}

// createTransfers stores the decoded token transfer logs of a transaction.
func (h *History) createTransfers(ctx context.Context, tx *models.Transaction, item *adapter.CovalentTransaction) ([]*models.ERC20Transfer, []*models.ERC721Transfer, error) {
	var erc20 []*models.ERC20Transfer
	var erc721 []*models.ERC721Transfer

	for _, event := range item.LogEvents {
		decoded := event.Decoded
		if decoded == nil || len(decoded.Params) < 3 {
			continue
		}

		switch decoded.Signature {
		case adapter.ERC20TransferSignature:
			transfer := &models.ERC20Transfer{
				TxID:            tx.ID,
				ContractAddress: event.SenderAddress,
				ContractName:    event.SenderName,
				ContractTicker:  event.SenderContractTicker,
				LogoURL:         event.SenderLogoURL,
				FromAddress:     decoded.Params[0].Value,
				ToAddress:       decoded.Params[1].Value,
				Amount:          decoded.Params[2].Value,
				Decimals:        event.SenderContractDecimals,
			}
			if _, err := h.txs.GetOrCreateERC20(ctx, transfer); err != nil {
				return erc20, erc721, err
			}
			erc20 = append(erc20, transfer)

		case adapter.ERC721TransferSignature:
			transfer := &models.ERC721Transfer{
				TxID:            tx.ID,
				ContractAddress: event.SenderAddress,
				ContractName:    event.SenderName,
				ContractTicker:  event.SenderContractTicker,
				LogoURL:         event.SenderLogoURL,
				FromAddress:     decoded.Params[0].Value,
				ToAddress:       decoded.Params[1].Value,
				TokenID:         decoded.Params[2].Value,
			}
			if _, err := h.txs.GetOrCreateERC721(ctx, transfer); err != nil {
				return erc20, erc721, err
			}
			erc721 = append(erc721, transfer)
		}
	}

	return erc20, erc721, nil
}
