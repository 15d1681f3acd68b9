package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// RateLimitedBackend throttles every call of the wrapped backend through a
// shared token bucket. Public endpoints reject bursty callers.
type RateLimitedBackend struct {
	backend Backend
	limiter *rate.Limiter
}

// NewRateLimited wraps backend with limiter.
func NewRateLimited(backend Backend, limiter *rate.Limiter) *RateLimitedBackend {
	return &RateLimitedBackend{backend: backend, limiter: limiter}
}

// NewLimiter allows rps requests per second with a burst of the same size.
func NewLimiter(rps float64) *rate.Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (b *RateLimitedBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.backend.ChainID(ctx)
}

func (b *RateLimitedBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return b.backend.BlockNumber(ctx)
}

func (b *RateLimitedBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.backend.HeaderByNumber(ctx, number)
}

func (b *RateLimitedBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.backend.CodeAt(ctx, account, blockNumber)
}

func (b *RateLimitedBackend) CallContract(
	ctx context.Context,
	call ethereum.CallMsg,
	blockNumber *big.Int,
) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.backend.CallContract(ctx, call, blockNumber)
}

func (b *RateLimitedBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.backend.FilterLogs(ctx, q)
}

func (b *RateLimitedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return b.backend.TransactionReceipt(ctx, txHash)
}
