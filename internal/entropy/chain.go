package entropy

import (
	"context"
	"math/big"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/logger"
	"github.com/pkg/errors"

	"ledgerlottery/internal/ledger"
)

// HeaderReader is the subset of ethclient.Client used by ChainSource.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainSource uses the hash of the latest block of an Ethereum-compatible
// chain as entropy.
type ChainSource struct {
	client         HeaderReader
	requestTimeout time.Duration
	maxRetries     uint64
	newBackOff     func() backoff.BackOff
}

// DialChainSource connects to the JSON-RPC endpoint at rpcURL.
func DialChainSource(ctx context.Context, rpcURL string, requestTimeout time.Duration, maxRetries uint64) (*ChainSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcURL)
	}
	return NewChainSource(client, requestTimeout, maxRetries), nil
}

// NewChainSource wraps an existing header reader.
func NewChainSource(client HeaderReader, requestTimeout time.Duration, maxRetries uint64) *ChainSource {
	return &ChainSource{
		client:         client,
		requestTimeout: requestTimeout,
		maxRetries:     maxRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Entropy fetches the latest block header and returns its hash.
func (c *ChainSource) Entropy(ctx context.Context) (ledger.Address, error) {
	var hash ledger.Address
	attempt := 0
	fetch := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
		header, err := c.client.HeaderByNumber(reqCtx, nil)
		if err != nil {
			logger.Warningf("fetching latest block header failed, attempt=%d err=%v", attempt, err)
			return err
		}
		hash = header.Hash()
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(fetch, b); err != nil {
		return ledger.Address{}, errors.Wrap(err, "read chain entropy")
	}
	return hash, nil
}
