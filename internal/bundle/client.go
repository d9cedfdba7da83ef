// Package bundle submits atomic transaction bundles to a Jito block engine.
package bundle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const bundlesPath = "/api/v1/bundles"

// Client is a block-engine JSON-RPC client.
type Client struct {
	rpc    *rpc.Client
	logger *slog.Logger
}

// NewClient dials the block engine at baseURL.
func NewClient(ctx context.Context, baseURL string, logger *slog.Logger) (*Client, error) {
	url := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(url, bundlesPath) {
		url += bundlesPath
	}
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("bundle: dial %s: %w", url, err)
	}
	return &Client{rpc: c, logger: logger.With(slog.String("component", "bundle"))}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

// SendBundle submits signed transactions to be executed in order, all or
// nothing. It returns the bundle id.
func (c *Client) SendBundle(ctx context.Context, txs [][]byte) (string, error) {
	if len(txs) == 0 {
		return "", errors.New("bundle: empty bundle")
	}
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = base64.StdEncoding.EncodeToString(tx)
	}

	var id string
	if err := c.rpc.CallContext(ctx, &id, "sendBundle", encoded, map[string]string{"encoding": "base64"}); err != nil {
		return "", fmt.Errorf("bundle: send: %w", mapRPCError(err))
	}
	c.logger.InfoContext(ctx, "bundle: submitted", slog.String("bundle_id", id), slog.Int("txs", len(txs)))
	return id, nil
}

type statusEntry struct {
	BundleID           string         `json:"bundle_id"`
	Transactions       []string       `json:"transactions"`
	Slot               uint64         `json:"slot"`
	ConfirmationStatus string         `json:"confirmation_status"`
	Err                map[string]any `json:"err"`
}

// BundleStatus returns the landing state of a submitted bundle. Unknown
// bundles are reported as pending.
func (c *Client) BundleStatus(ctx context.Context, id string) (domain.BundleStatus, error) {
	var res struct {
		Value []*statusEntry `json:"value"`
	}
	if err := c.rpc.CallContext(ctx, &res, "getBundleStatuses", []string{id}); err != nil {
		return domain.BundleStatus{}, fmt.Errorf("bundle: status %s: %w", id, mapRPCError(err))
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return domain.BundleStatus{ID: id, State: domain.BundlePending}, nil
	}
	return toStatus(id, res.Value[0]), nil
}

func toStatus(id string, e *statusEntry) domain.BundleStatus {
	st := domain.BundleStatus{ID: id, Slot: e.Slot, State: domain.BundlePending}
	if len(e.Err) > 0 {
		if _, ok := e.Err["Ok"]; !ok {
			st.State = domain.BundleFailed
			st.Detail = fmt.Sprint(e.Err)
			return st
		}
	}
	switch e.ConfirmationStatus {
	case "confirmed", "finalized":
		st.State = domain.BundleLanded
	case "failed", "rejected":
		st.State = domain.BundleFailed
		st.Detail = e.ConfirmationStatus
	}
	return st
}

// WaitForBundle polls until the bundle lands or fails, or timeout elapses.
// A timed out bundle is returned with state timeout and a nil error.
func (c *Client) WaitForBundle(ctx context.Context, id string, timeout, interval time.Duration) (domain.BundleStatus, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		st, err := c.BundleStatus(ctx, id)
		if err != nil {
			c.logger.DebugContext(ctx, "bundle: status poll failed",
				slog.String("bundle_id", id),
				slog.String("error", err.Error()),
			)
		} else if st.State == domain.BundleLanded || st.State == domain.BundleFailed {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return domain.BundleStatus{}, ctx.Err()
		case <-deadline.C:
			c.logger.WarnContext(ctx, "bundle: confirmation timeout", slog.String("bundle_id", id))
			return domain.BundleStatus{ID: id, State: domain.BundleTimeout}, nil
		case <-tick.C:
		}
	}
}

func mapRPCError(err error) error {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return err
}
