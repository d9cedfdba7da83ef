// Package chain talks to a Solana JSON-RPC node and signs transactions for the
// engine's wallet.
package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/arbengine/internal/cache"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// tokenProgramID owns every SPL token account.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// commitment used for reads and preflight.
const commitment = "confirmed"

// Rate limiter buckets. Submissions draw from their own bucket so status
// polling cannot starve a send.
const (
	RPCLimiterKey         = "rpc"
	TransactionLimiterKey = "transaction"
)

// Client is a thin typed wrapper over the Solana JSON-RPC API.
type Client struct {
	rpc      *rpc.Client
	decimals *cache.Cache[int32]
	limiter  domain.RateLimiter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient dials the RPC endpoint. decimals caches getTokenSupply lookups.
// Reads acquire RPCLimiterKey and sends acquire TransactionLimiterKey from
// limiter. Both decimals and limiter may be nil.
func NewClient(
	ctx context.Context,
	url string,
	timeout time.Duration,
	decimals *cache.Cache[int32],
	limiter domain.RateLimiter,
	logger *slog.Logger,
) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return &Client{
		rpc:      c,
		decimals: decimals,
		limiter:  limiter,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "chain")),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type balanceResult struct {
	Context rpcContext `json:"context"`
	Value   uint64     `json:"value"`
}

// Balance returns the native balance of owner in lamports.
func (c *Client) Balance(ctx context.Context, owner string) (uint64, error) {
	var res balanceResult
	if err := c.call(ctx, &res, "getBalance", owner, map[string]any{"commitment": commitment}); err != nil {
		return 0, fmt.Errorf("chain: get balance %s: %w", owner, err)
	}
	return res.Value, nil
}

type tokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int32  `json:"decimals"`
}

type tokenAccountsResult struct {
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string      `json:"mint"`
						TokenAmount tokenAmount `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

func (c *Client) tokenAccounts(ctx context.Context, owner string, filter map[string]string) ([]domain.Holding, error) {
	var res tokenAccountsResult
	err := c.call(ctx, &res, "getTokenAccountsByOwner", owner, filter,
		map[string]any{"encoding": "jsonParsed", "commitment": commitment})
	if err != nil {
		return nil, err
	}

	byMint := make(map[string]int)
	var out []domain.Holding
	for _, acct := range res.Value {
		info := acct.Account.Data.Parsed.Info
		amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse amount for account %s: %w", acct.Pubkey, err)
		}
		if i, ok := byMint[info.Mint]; ok {
			out[i].Amount += amount
			continue
		}
		byMint[info.Mint] = len(out)
		out = append(out, domain.Holding{Mint: info.Mint, Amount: amount, Decimals: info.TokenAmount.Decimals})
	}
	return out, nil
}

// TokenBalance returns the summed raw balance of every token account owner
// holds for mint.
func (c *Client) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	h, err := c.tokenAccounts(ctx, owner, map[string]string{"mint": mint})
	if err != nil {
		return 0, fmt.Errorf("chain: token balance %s: %w", mint, err)
	}
	var total uint64
	for _, x := range h {
		total += x.Amount
	}
	return total, nil
}

// TokenHoldings returns one entry per mint held by owner.
func (c *Client) TokenHoldings(ctx context.Context, owner string) ([]domain.Holding, error) {
	h, err := c.tokenAccounts(ctx, owner, map[string]string{"programId": tokenProgramID})
	if err != nil {
		return nil, fmt.Errorf("chain: token holdings: %w", err)
	}
	return h, nil
}

// TokenDecimals returns the mint's decimals, cached per mint.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (int32, error) {
	if c.decimals != nil {
		if d, ok := c.decimals.Get(mint); ok {
			return d, nil
		}
	}
	var res struct {
		Value tokenAmount `json:"value"`
	}
	if err := c.call(ctx, &res, "getTokenSupply", mint); err != nil {
		return 0, fmt.Errorf("chain: token supply %s: %w", mint, err)
	}
	if c.decimals != nil {
		c.decimals.Set(mint, res.Value.Decimals)
	}
	return res.Value.Decimals, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	var sig string
	err := c.callWith(ctx, TransactionLimiterKey, &sig, "sendTransaction", base64.StdEncoding.EncodeToString(tx), map[string]any{
		"encoding":            "base64",
		"skipPreflight":       false,
		"preflightCommitment": commitment,
		"maxRetries":          3,
	})
	if err != nil {
		return "", fmt.Errorf("chain: send transaction: %w", err)
	}
	c.logger.DebugContext(ctx, "chain: transaction sent", slog.String("signature", sig))
	return sig, nil
}

type signatureStatus struct {
	Slot               uint64  `json:"slot"`
	Confirmations      *uint64 `json:"confirmations"`
	Err                any     `json:"err"`
	ConfirmationStatus string  `json:"confirmationStatus"`
}

// SignatureStatus returns the confirmation state of a submitted transaction.
func (c *Client) SignatureStatus(ctx context.Context, sig string) (domain.TxStatus, error) {
	var res struct {
		Value []*signatureStatus `json:"value"`
	}
	if err := c.call(ctx, &res, "getSignatureStatuses", []string{sig}, map[string]any{"searchTransactionHistory": false}); err != nil {
		return domain.TxStatus{}, fmt.Errorf("chain: signature status %s: %w", sig, err)
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return domain.TxStatus{State: domain.TxPending}, nil
	}
	st := res.Value[0]
	switch {
	case st.Err != nil:
		return domain.TxStatus{State: domain.TxFailed, Detail: fmt.Sprint(st.Err)}, nil
	case st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized":
		return domain.TxStatus{State: domain.TxConfirmed}, nil
	case st.Confirmations != nil && *st.Confirmations >= 1:
		return domain.TxStatus{State: domain.TxConfirmed}, nil
	default:
		return domain.TxStatus{State: domain.TxPending}, nil
	}
}

// WaitForConfirmation polls the signature up to attempts times, interval
// apart. It returns ErrTxFailed when the chain rejects the transaction and
// ErrTxTimeout when it never confirms.
func (c *Client) WaitForConfirmation(ctx context.Context, sig string, attempts int, interval time.Duration) error {
	for i := 0; i < attempts; i++ {
		st, err := c.SignatureStatus(ctx, sig)
		if err != nil {
			c.logger.DebugContext(ctx, "chain: status poll failed",
				slog.String("signature", sig),
				slog.String("error", err.Error()),
			)
		} else {
			switch st.State {
			case domain.TxConfirmed:
				return nil
			case domain.TxFailed:
				return fmt.Errorf("chain: transaction %s: %w: %s", sig, domain.ErrTxFailed, st.Detail)
			}
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("chain: transaction %s: %w", sig, domain.ErrTxTimeout)
}

// BlockHeight returns the current block height.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	var h uint64
	if err := c.call(ctx, &h, "getBlockHeight", map[string]any{"commitment": commitment}); err != nil {
		return 0, fmt.Errorf("chain: block height: %w", err)
	}
	return h, nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return c.callWith(ctx, RPCLimiterKey, result, method, args...)
}

func (c *Client) callWith(ctx context.Context, bucket string, result any, method string, args ...any) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, bucket, 1); err != nil {
			return fmt.Errorf("%s limiter: %w", bucket, err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return mapRPCError(c.rpc.CallContext(ctx, result, method, args...))
}

// mapRPCError converts transport errors into domain sentinels where one
// applies.
func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return err
}
