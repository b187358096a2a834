package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/blockso/blockso/internal/adapter"
	"github.com/blockso/blockso/internal/logging"
	"github.com/blockso/blockso/internal/models"
	"github.com/blockso/blockso/internal/retry"
	"github.com/blockso/blockso/internal/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WebhookPayload is the body of an Alchemy Notify address-activity webhook.
type WebhookPayload struct {
	WebhookID string `json:"webhookId"`
	ID        string `json:"id"`
	Event     struct {
		Network  string         `json:"network"`
		Activity []ActivityItem `json:"activity"`
	} `json:"event"`
}

// ActivityItem is one activity entry of a webhook delivery.
type ActivityItem struct {
	Category        string          `json:"category"`
	FromAddress     string          `json:"fromAddress"`
	ToAddress       string          `json:"toAddress"`
	BlockNum        string          `json:"blockNum"`
	Hash            string          `json:"hash"`
	Asset           string          `json:"asset,omitempty"`
	ERC721TokenID   string          `json:"erc721TokenId,omitempty"`
	ERC1155Metadata json.RawMessage `json:"erc1155Metadata,omitempty"`
	Removed         bool            `json:"removed,omitempty"`
	RawContract     *RawContract    `json:"rawContract,omitempty"`
	Log             *ActivityLog    `json:"log,omitempty"`
}

// RawContract identifies the token contract of a token activity item.
type RawContract struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// ActivityLog is the raw log entry attached to token activity items.
type ActivityLog struct {
	Data             string `json:"data"`
	Removed          bool   `json:"removed"`
	TransactionIndex string `json:"transactionIndex"`
}

// Activity imports real-time transaction activity delivered by webhook.
// Items are processed in order with no cross-item transactionality; a
// failed item never blocks the rest of the batch.
type Activity struct {
	txs      TransactionStore
	chain    adapter.ChainClient
	deriver  PostDeriver
	retryCfg *retry.Config
	logger   *logging.Logger
}

// NewActivity creates a webhook-based activity importer.
func NewActivity(txs TransactionStore, chainClient adapter.ChainClient, deriver PostDeriver) *Activity {
	return &Activity{
		txs:      txs,
		chain:    chainClient,
		deriver:  deriver,
		retryCfg: retry.DefaultConfig(),
		logger:   logging.GetGlobalLogger().WithField("component", "activity_importer"),
	}
}

// ProcessBatch handles every activity item of a webhook delivery. It
// returns the number of items that failed.
func (a *Activity) ProcessBatch(ctx context.Context, items []ActivityItem) int {
	failed := 0
	for i := range items {
		if err := a.ProcessItem(ctx, &items[i]); err != nil {
			failed++
			a.logger.WithError(err).WithFields(map[string]interface{}{
				"tx_hash":  items[i].Hash,
				"category": items[i].Category,
			}).Error("Failed to process activity item")
		}
	}
	return failed
}

// ProcessItem handles a single activity item.
func (a *Activity) ProcessItem(ctx context.Context, item *ActivityItem) error {
	category := types.ActivityCategory(item.Category)

	// Internal transfers and ERC-1155 transfers are not supported yet.
	if category == types.CategoryInternal {
		return nil
	}
	if category == types.CategoryToken && len(item.ERC1155Metadata) > 0 {
		return nil
	}

	if a.isReorged(item, category) {
		return a.txs.DeleteByHash(ctx, item.Hash)
	}

	// The history poll may have imported this transaction already. Token
	// items still go through, their transfer rows dedup on their own keys.
	if category == types.CategoryExternal {
		exists, err := a.txs.ExistsByHash(ctx, item.Hash)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	tx, err := a.createTransaction(ctx, item)
	if err != nil {
		return err
	}

	switch {
	case category == types.CategoryExternal:
		return a.deriver.DeriveFromActivity(ctx, tx, []string{tx.FromAddress, tx.ToAddress})
	case category == types.CategoryToken && item.ERC721TokenID != "":
		return a.createERC721Transfer(ctx, tx, item)
	case category == types.CategoryToken && item.Asset != "":
		return a.createERC20Transfer(ctx, tx, item)
	}

	return nil
}

// isReorged reports whether the item announces a removed (re-orged) event.
func (a *Activity) isReorged(item *ActivityItem, category types.ActivityCategory) bool {
	if category == types.CategoryToken {
		return item.Log != nil && item.Log.Removed
	}
	return item.Removed
}

// createTransaction resolves the item's transaction details over RPC and
// stores the row. Lookup by block number and index is preferred over
// lookup by hash because it is cheaper on most providers.
func (a *Activity) createTransaction(ctx context.Context, item *ActivityItem) (*models.Transaction, error) {
	blockNum, err := hexutil.DecodeUint64(item.BlockNum)
	if err != nil {
		return nil, fmt.Errorf("invalid block number %q: %w", item.BlockNum, err)
	}

	var blockTime time.Time
	err = retry.Do(ctx, a.retryCfg, func(ctx context.Context, attempt int) error {
		var err error
		blockTime, err = a.chain.BlockTimestamp(ctx, blockNum)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve block timestamp: %w", err)
	}

	var detail *adapter.TxDetail
	var txOffset *int
	err = retry.Do(ctx, a.retryCfg, func(ctx context.Context, attempt int) error {
		var err error
		if item.Log != nil && item.Log.TransactionIndex != "" {
			index, idxErr := hexutil.DecodeUint64(item.Log.TransactionIndex)
			if idxErr != nil {
				return idxErr
			}
			offset := int(index)
			txOffset = &offset
			detail, err = a.chain.TransactionDetailInBlock(ctx, blockNum, uint(index))
		} else {
			detail, err = a.chain.TransactionDetail(ctx, item.Hash)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transaction details: %w", err)
	}

	toAddress := types.ZeroAddress
	if detail.To != nil {
		toAddress = *detail.To
	}

	tx := &models.Transaction{
		ChainID:       types.ChainEthereum,
		TxHash:        item.Hash,
		BlockSignedAt: blockTime,
		TxOffset:      txOffset,
		Successful:    true,
		FromAddress:   detail.From,
		ToAddress:     toAddress,
		Value:         detail.Value,
	}

	if _, err := a.txs.GetOrCreate(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// createERC20Transfer stores a fungible transfer and derives posts for both
// participants. The amount comes from the raw log data; the contract name
// is resolved over RPC.
func (a *Activity) createERC20Transfer(ctx context.Context, tx *models.Transaction, item *ActivityItem) error {
	if item.RawContract == nil || item.Log == nil {
		return fmt.Errorf("token activity item %s is missing contract or log data", item.Hash)
	}

	amount, err := hexQuantityToDecimal(item.Log.Data)
	if err != nil {
		return fmt.Errorf("invalid transfer amount: %w", err)
	}

	var name string
	err = retry.Do(ctx, a.retryCfg, func(ctx context.Context, attempt int) error {
		var err error
		name, err = a.chain.TokenName(ctx, item.RawContract.Address)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to resolve token name: %w", err)
	}

	transfer := &models.ERC20Transfer{
		TxID:            tx.ID,
		ContractAddress: item.RawContract.Address,
		ContractName:    name,
		ContractTicker:  item.Asset,
		LogoURL:         adapter.TokenLogoURL(item.RawContract.Address),
		FromAddress:     item.FromAddress,
		ToAddress:       item.ToAddress,
		Amount:          amount,
		Decimals:        item.RawContract.Decimals,
	}
	if _, err := a.txs.GetOrCreateERC20(ctx, transfer); err != nil {
		return err
	}

	return a.deriver.DeriveFromActivity(ctx, tx, []string{transfer.FromAddress, transfer.ToAddress})
}

// createERC721Transfer stores a non-fungible transfer and derives posts for
// both participants. Symbol and name are resolved over RPC.
func (a *Activity) createERC721Transfer(ctx context.Context, tx *models.Transaction, item *ActivityItem) error {
	if item.RawContract == nil {
		return fmt.Errorf("token activity item %s is missing contract data", item.Hash)
	}

	tokenID, err := hexQuantityToDecimal(item.ERC721TokenID)
	if err != nil {
		return fmt.Errorf("invalid token id: %w", err)
	}

	var name, symbol string
	err = retry.Do(ctx, a.retryCfg, func(ctx context.Context, attempt int) error {
		var err error
		if symbol, err = a.chain.TokenSymbol(ctx, item.RawContract.Address); err != nil {
			return err
		}
		name, err = a.chain.TokenName(ctx, item.RawContract.Address)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to resolve collection metadata: %w", err)
	}

	transfer := &models.ERC721Transfer{
		TxID:            tx.ID,
		ContractAddress: item.RawContract.Address,
		ContractName:    name,
		ContractTicker:  symbol,
		LogoURL:         adapter.TokenLogoURL(item.RawContract.Address),
		FromAddress:     item.FromAddress,
		ToAddress:       item.ToAddress,
		TokenID:         tokenID,
	}
	if _, err := a.txs.GetOrCreateERC721(ctx, transfer); err != nil {
		return err
	}

	return a.deriver.DeriveFromActivity(ctx, tx, []string{transfer.FromAddress, transfer.ToAddress})
}

// hexQuantityToDecimal converts a 0x-prefixed hex quantity, padded or not,
// to its decimal string form.
func hexQuantityToDecimal(hex string) (string, error) {
	raw, err := hexutil.Decode(hex)
	if err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(raw).String(), nil
}
