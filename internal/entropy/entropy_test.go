package entropy

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ledgerlottery/internal/ledger"
)

type flakyHeaders struct {
	failures int
	calls    int
	header   *types.Header
}

func (f *flakyHeaders) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.header, nil
}

func fastSource(client HeaderReader, retries uint64) *ChainSource {
	src := NewChainSource(client, time.Second, retries)
	src.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	return src
}

func TestChainSource(t *testing.T) {
	header := &types.Header{Number: big.NewInt(42), Difficulty: big.NewInt(1)}

	t.Run("retries transient failures", func(t *testing.T) {
		client := &flakyHeaders{failures: 2, header: header}
		got, err := fastSource(client, 3).Entropy(context.Background())
		require.NoError(t, err)
		assert.Equal(t, header.Hash(), got)
		assert.Equal(t, 3, client.calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		client := &flakyHeaders{failures: 10, header: header}
		_, err := fastSource(client, 2).Entropy(context.Background())
		assert.Error(t, err)
		assert.Equal(t, 3, client.calls)
	})
}

func TestReduce(t *testing.T) {
	var e ledger.Address
	e[0] = 7
	assert.EqualValues(t, 8, Reduce(e, 10))
	assert.EqualValues(t, 4, Reduce(e, 4))
	assert.EqualValues(t, 1, Reduce(e, 1))

	rapid.Check(t, func(t *rapid.T) {
		var e ledger.Address
		copy(e[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "entropy"))
		n := rapid.Uint64Range(1, 1<<40).Draw(t, "n")
		w := Reduce(e, n)
		if w < 1 || w > n {
			t.Fatalf("winner %d outside [1, %d]", w, n)
		}
	})
}

func TestFixed(t *testing.T) {
	want := ledger.Derive([]byte("seed"))
	got, err := Fixed(want).Entropy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
