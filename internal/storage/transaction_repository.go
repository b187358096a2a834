package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockso/blockso/internal/chain"
	"github.com/blockso/blockso/internal/models"
	"github.com/jackc/pgx/v5"
)

// TransactionRepository handles transaction and transfer persistence.
//
// All create operations are expressed as atomic create-if-not-exists
// (unique constraint + ON CONFLICT DO NOTHING) so that concurrent
// importers touching overlapping data - the same transaction surfacing
// via both the poll and webhook paths - never duplicate records.
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetOrCreate inserts the transaction if no row with its tx_hash exists,
// otherwise loads the existing row. It reports whether a new row was
// created, and fills in the row id either way.
func (r *TransactionRepository) GetOrCreate(ctx context.Context, tx *models.Transaction) (bool, error) {
	var err error
	if tx.FromAddress, err = chain.Normalize(tx.FromAddress); err != nil {
		return false, err
	}
	if tx.ToAddress, err = chain.Normalize(tx.ToAddress); err != nil {
		return false, err
	}

	query := `
		INSERT INTO transactions (
			chain_id, tx_hash, block_signed_at, tx_offset, successful,
			from_address, to_address, value
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING
		RETURNING id
	`

	// A concurrent reorg delete can remove the conflicting row between
	// the insert and the lookup, so the insert-then-load pair retries.
	for attempt := 0; attempt < 3; attempt++ {
		err = r.db.Pool().QueryRow(ctx, query,
			tx.ChainID,
			tx.TxHash,
			tx.BlockSignedAt,
			tx.TxOffset,
			tx.Successful,
			tx.FromAddress,
			tx.ToAddress,
			tx.Value,
		).Scan(&tx.ID)

		if err == nil {
			return true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("failed to create transaction: %w", err)
		}

		existing, err := r.GetByHash(ctx, tx.TxHash)
		if err != nil {
			return false, err
		}
		if existing != nil {
			*tx = *existing
			return false, nil
		}
	}
	return false, fmt.Errorf("transaction %s was neither created nor found", tx.TxHash)
}

// GetByHash retrieves a transaction by its hash
func (r *TransactionRepository) GetByHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	query := `
		SELECT id, chain_id, tx_hash, block_signed_at, tx_offset, successful,
		       from_address, to_address, value
		FROM transactions
		WHERE tx_hash = $1
	`

	var tx models.Transaction
	err := r.db.Pool().QueryRow(ctx, query, txHash).Scan(
		&tx.ID,
		&tx.ChainID,
		&tx.TxHash,
		&tx.BlockSignedAt,
		&tx.TxOffset,
		&tx.Successful,
		&tx.FromAddress,
		&tx.ToAddress,
		&tx.Value,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// ExistsByHash reports whether a transaction with the given hash is stored
func (r *TransactionRepository) ExistsByHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE tx_hash = $1)`, txHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// GetOrCreateERC20 inserts the transfer unless a row with its natural key
// (tx, contract, from, to, amount) exists. Reports whether a row was created.
func (r *TransactionRepository) GetOrCreateERC20(ctx context.Context, transfer *models.ERC20Transfer) (bool, error) {
	var err error
	if transfer.FromAddress, err = chain.Normalize(transfer.FromAddress); err != nil {
		return false, err
	}
	if transfer.ToAddress, err = chain.Normalize(transfer.ToAddress); err != nil {
		return false, err
	}
	if transfer.ContractAddress, err = chain.Normalize(transfer.ContractAddress); err != nil {
		return false, err
	}

	query := `
		INSERT INTO erc20_transfers (
			tx_id, contract_address, contract_name, contract_ticker,
			logo_url, from_address, to_address, amount, decimals
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT erc20_transfers_natural_key DO NOTHING
		RETURNING id
	`

	err = r.db.Pool().QueryRow(ctx, query,
		transfer.TxID,
		transfer.ContractAddress,
		transfer.ContractName,
		transfer.ContractTicker,
		transfer.LogoURL,
		transfer.FromAddress,
		transfer.ToAddress,
		transfer.Amount,
		transfer.Decimals,
	).Scan(&transfer.ID)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("failed to create erc20 transfer: %w", err)
}

// GetOrCreateERC721 inserts the transfer unless a row with its natural key
// (tx, contract, from, to, token id) exists. Reports whether a row was created.
func (r *TransactionRepository) GetOrCreateERC721(ctx context.Context, transfer *models.ERC721Transfer) (bool, error) {
	var err error
	if transfer.FromAddress, err = chain.Normalize(transfer.FromAddress); err != nil {
		return false, err
	}
	if transfer.ToAddress, err = chain.Normalize(transfer.ToAddress); err != nil {
		return false, err
	}
	if transfer.ContractAddress, err = chain.Normalize(transfer.ContractAddress); err != nil {
		return false, err
	}

	query := `
		INSERT INTO erc721_transfers (
			tx_id, contract_address, contract_name, contract_ticker,
			logo_url, from_address, to_address, token_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT erc721_transfers_natural_key DO NOTHING
		RETURNING id
	`

	err = r.db.Pool().QueryRow(ctx, query,
		transfer.TxID,
		transfer.ContractAddress,
		transfer.ContractName,
		transfer.ContractTicker,
		transfer.LogoURL,
		transfer.FromAddress,
		transfer.ToAddress,
		transfer.TokenID,
	).Scan(&transfer.ID)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("failed to create erc721 transfer: %w", err)
}

// ERC20TransfersByTx returns the ERC20 transfers recorded for a transaction
func (r *TransactionRepository) ERC20TransfersByTx(ctx context.Context, txID int64) ([]*models.ERC20Transfer, error) {
	query := `
		SELECT id, tx_id, contract_address, contract_name, contract_ticker,
		       logo_url, from_address, to_address, amount, decimals
		FROM erc20_transfers
		WHERE tx_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to query erc20 transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.ERC20Transfer
	for rows.Next() {
		var t models.ERC20Transfer
		if err := rows.Scan(
			&t.ID, &t.TxID, &t.ContractAddress, &t.ContractName, &t.ContractTicker,
			&t.LogoURL, &t.FromAddress, &t.ToAddress, &t.Amount, &t.Decimals,
		); err != nil {
			return nil, fmt.Errorf("failed to scan erc20 transfer: %w", err)
		}
		transfers = append(transfers, &t)
	}

	return transfers, rows.Err()
}

// ERC721TransfersByTx returns the ERC721 transfers recorded for a transaction
func (r *TransactionRepository) ERC721TransfersByTx(ctx context.Context, txID int64) ([]*models.ERC721Transfer, error) {
	query := `
		SELECT id, tx_id, contract_address, contract_name, contract_ticker,
		       logo_url, from_address, to_address, token_id
		FROM erc721_transfers
		WHERE tx_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to query erc721 transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.ERC721Transfer
	for rows.Next() {
		var t models.ERC721Transfer
		if err := rows.Scan(
			&t.ID, &t.TxID, &t.ContractAddress, &t.ContractName, &t.ContractTicker,
			&t.LogoURL, &t.FromAddress, &t.ToAddress, &t.TokenID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan erc721 transfer: %w", err)
		}
		transfers = append(transfers, &t)
	}

	return transfers, rows.Err()
}

// DeleteByHash removes the transaction with the given hash along with its
// transfers and any posts referencing it. Used by reorg handling.
//
// The deletes run explicitly, in order, inside one database transaction;
// the schema's cascades are a backstop, not the mechanism. Deleting a
// hash that was never stored is a no-op, not an error.
func (r *TransactionRepository) DeleteByHash(ctx context.Context, txHash string) error {
	dbTx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx)
	}()

	var txID int64
	err = dbTx.QueryRow(ctx, `SELECT id FROM transactions WHERE tx_hash = $1`, txHash).Scan(&txID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to look up transaction for delete: %w", err)
	}

	if _, err := dbTx.Exec(ctx, `DELETE FROM posts WHERE ref_tx_id = $1`, txID); err != nil {
		return fmt.Errorf("failed to delete posts for reorged tx: %w", err)
	}
	if _, err := dbTx.Exec(ctx, `DELETE FROM erc20_transfers WHERE tx_id = $1`, txID); err != nil {
		return fmt.Errorf("failed to delete erc20 transfers for reorged tx: %w", err)
	}
	if _, err := dbTx.Exec(ctx, `DELETE FROM erc721_transfers WHERE tx_id = $1`, txID); err != nil {
		return fmt.Errorf("failed to delete erc721 transfers for reorged tx: %w", err)
	}
	if _, err := dbTx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, txID); err != nil {
		return fmt.Errorf("failed to delete reorged tx: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reorg delete: %w", err)
	}
	return nil
}
