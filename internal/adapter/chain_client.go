package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// tokenMetadataABI covers the read-only metadata calls shared by ERC-20 and
// ERC-721 contracts.
const tokenMetadataABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

// TxDetail holds the transaction fields the activity importer needs.
// To is nil for contract creation transactions.
type TxDetail struct {
	Hash  string
	From  string
	To    *string
	Value string
}

// ChainClient resolves on-chain details the webhook payload omits.
type ChainClient interface {
	// BlockTimestamp returns the timestamp of the given block.
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)

	// TransactionDetail looks a transaction up by hash.
	TransactionDetail(ctx context.Context, txHash string) (*TxDetail, error)

	// TransactionDetailInBlock looks a transaction up by block number and
	// index, which is cheaper than a hash lookup on most providers.
	TransactionDetailInBlock(ctx context.Context, blockNumber uint64, index uint) (*TxDetail, error)

	// TokenName calls name() on a token contract.
	TokenName(ctx context.Context, contractAddress string) (string, error)

	// TokenSymbol calls symbol() on a token contract.
	TokenSymbol(ctx context.Context, contractAddress string) (string, error)
}

// EthereumChainClient implements ChainClient against a JSON-RPC endpoint.
type EthereumChainClient struct {
	client      *ethclient.Client
	metadataABI abi.ABI
}

// NewEthereumChainClient dials the given RPC URL.
func NewEthereumChainClient(rpcURL string) (*EthereumChainClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(tokenMetadataABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token metadata ABI: %w", err)
	}

	return &EthereumChainClient{client: client, metadataABI: parsedABI}, nil
}

// BlockTimestamp returns the UTC timestamp of the block header.
func (c *EthereumChainClient) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get block header: %w", err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// TransactionDetail looks a transaction up by hash.
func (c *EthereumChainClient) TransactionDetail(ctx context.Context, txHash string) (*TxDetail, error) {
	tx, isPending, err := c.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash, err)
	}
	if isPending {
		return nil, fmt.Errorf("transaction %s is still pending", txHash)
	}

	return c.detailFromTx(tx)
}

// TransactionDetailInBlock looks a transaction up by block number and index.
func (c *EthereumChainClient) TransactionDetailInBlock(ctx context.Context, blockNumber uint64, index uint) (*TxDetail, error) {
	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to get block header: %w", err)
	}

	tx, err := c.client.TransactionInBlock(ctx, header.Hash(), index)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction at block %d index %d: %w", blockNumber, index, err)
	}

	return c.detailFromTx(tx)
}

func (c *EthereumChainClient) detailFromTx(tx *ethtypes.Transaction) (*TxDetail, error) {
	chainID := tx.ChainId()
	if chainID == nil || chainID.Sign() == 0 {
		// Legacy pre-EIP-155 transactions carry no chain id.
		chainID = big.NewInt(1)
	}
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", tx.Hash().Hex(), err)
	}

	detail := &TxDetail{
		Hash:  tx.Hash().Hex(),
		From:  sender.Hex(),
		Value: tx.Value().String(),
	}
	if to := tx.To(); to != nil {
		hex := to.Hex()
		detail.To = &hex
	}
	return detail, nil
}

// TokenName calls name() on the contract.
func (c *EthereumChainClient) TokenName(ctx context.Context, contractAddress string) (string, error) {
	return c.callStringMethod(ctx, contractAddress, "name")
}

// TokenSymbol calls symbol() on the contract.
func (c *EthereumChainClient) TokenSymbol(ctx context.Context, contractAddress string) (string, error) {
	return c.callStringMethod(ctx, contractAddress, "symbol")
}

func (c *EthereumChainClient) callStringMethod(ctx context.Context, contractAddress, method string) (string, error) {
	contract := common.HexToAddress(contractAddress)

	data, err := c.metadataABI.Pack(method)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("%s() call failed for %s: %w", method, contractAddress, err)
	}
	if len(result) == 0 {
		return "", nil
	}

	// Some older contracts return bytes32 instead of an ABI-encoded string.
	if len(result) == 32 {
		return string(common.TrimRightZeroes(result)), nil
	}

	values, err := c.metadataABI.Unpack(method, result)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s() result for %s: %w", method, contractAddress, err)
	}
	if len(values) == 0 {
		return "", nil
	}
	name, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s() result type for %s", method, contractAddress)
	}
	return name, nil
}
