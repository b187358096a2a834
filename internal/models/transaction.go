package models

import (
	"time"

	"github.com/blockso/blockso/internal/types"
)

// Transaction represents a chain transaction stored in Postgres.
// One row per distinct on-chain transaction, unique on tx_hash. Rows are
// never mutated after creation; the reorg path deletes them (cascading to
// transfers and derived posts).
type Transaction struct {
	ID            int64         `json:"id" db:"id"`
	ChainID       types.ChainID `json:"chainId" db:"chain_id"`
	TxHash        string        `json:"txHash" db:"tx_hash"`
	BlockSignedAt time.Time     `json:"blockSignedAt" db:"block_signed_at"`
	// TxOffset is the ordinal position within the block, when the provider
	// reports it. The webhook path does not always know it.
	TxOffset    *int   `json:"txOffset,omitempty" db:"tx_offset"`
	Successful  bool   `json:"successful" db:"successful"`
	FromAddress string `json:"fromAddress" db:"from_address"`
	ToAddress   string `json:"toAddress" db:"to_address"`
	Value       string `json:"value" db:"value"`
}

// ERC20Transfer represents a fungible token transfer emitted as a log
// within a transaction. Deduplicated on
// (tx_id, contract_address, from_address, to_address, amount).
type ERC20Transfer struct {
	ID              int64  `json:"id" db:"id"`
	TxID            int64  `json:"txId" db:"tx_id"`
	ContractAddress string `json:"contractAddress" db:"contract_address"`
	ContractName    string `json:"contractName" db:"contract_name"`
	ContractTicker  string `json:"contractTicker" db:"contract_ticker"`
	LogoURL         string `json:"logoUrl" db:"logo_url"`
	FromAddress     string `json:"fromAddress" db:"from_address"`
	ToAddress       string `json:"toAddress" db:"to_address"`
	Amount          string `json:"amount" db:"amount"`
	Decimals        int    `json:"decimals" db:"decimals"`
}

// ERC721Transfer represents a non-fungible token transfer emitted as a log
// within a transaction. Deduplicated on
// (tx_id, contract_address, from_address, to_address, token_id).
type ERC721Transfer struct {
	ID              int64  `json:"id" db:"id"`
	TxID            int64  `json:"txId" db:"tx_id"`
	ContractAddress string `json:"contractAddress" db:"contract_address"`
	ContractName    string `json:"contractName" db:"contract_name"`
	ContractTicker  string `json:"contractTicker" db:"contract_ticker"`
	LogoURL         string `json:"logoUrl" db:"logo_url"`
	FromAddress     string `json:"fromAddress" db:"from_address"`
	ToAddress       string `json:"toAddress" db:"to_address"`
	TokenID         string `json:"tokenId" db:"token_id"`
}
