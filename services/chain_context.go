package services

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
)

// ChainContext is the ledger access resolved for a single operation.
// Signer is nil when no wallet is connected.
type ChainContext struct {
	ChainID uint64
	Backend evm.Backend
	Signer  evm.Signer
}

// RequireSigner returns the signer or fails with "wallet not connected".
func (c *ChainContext) RequireSigner() (evm.Signer, error) {
	if c.Signer == nil {
		return nil, models.ErrWalletNotConnected
	}

	return c.Signer, nil
}

// Account returns the connected account, the zero address without a wallet.
func (c *ChainContext) Account() common.Address {
	if c.Signer == nil {
		return common.Address{}
	}

	return c.Signer.Address()
}

// ChainContextResolver yields the ledger access of the active chain
type ChainContextResolver interface {
	Resolve(ctx context.Context) (*ChainContext, error)
}

// Wallet is a signing wallet whose active chain may change between calls.
type Wallet interface {
	// Connect returns the wallet transport.
	Connect(ctx context.Context) (evm.Backend, error)

	// Signer returns a signer bound to chainID.
	Signer(chainID uint64) (evm.Signer, error)
}

// WalletChainContextResolver prefers the connected wallet and falls back to the
// public read endpoint of the default chain.
type WalletChainContextResolver struct {
	wallet         Wallet
	clients        ClientResolver
	defaultChainID uint64
	cache          *ReadCache
	logger         zerolog.Logger
}

// NewWalletChainContextResolver creates a resolver. wallet may be nil.
func NewWalletChainContextResolver(
	wallet Wallet,
	clients ClientResolver,
	defaultChainID uint64,
	cache *ReadCache,
	logger zerolog.Logger,
) *WalletChainContextResolver {
	return &WalletChainContextResolver{
		wallet:         wallet,
		clients:        clients,
		defaultChainID: defaultChainID,
		cache:          cache,
		logger:         logger.With().Str(logging.FieldModule, "chain_context").Logger(),
	}
}

// Resolve returns the chain context. The chain id is always queried from the
// transport so a wallet network switch is observed on the next call.
func (r *WalletChainContextResolver) Resolve(ctx context.Context) (*ChainContext, error) {
	if r.wallet != nil {
		cc, err := r.resolveWallet(ctx)
		if err == nil {
			r.cache.ObserveAccount(cc.Signer.Address())
			return cc, nil
		}

		r.logger.Debug().Err(err).Msg("Wallet unavailable, falling back to public endpoint")
	}

	backend, err := r.clients.GetClient(r.defaultChainID)
	if err != nil {
		return nil, models.WrapError(models.KindUnsupportedNetwork, err, "no public endpoint for the default chain")
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to query chain id")
	}

	r.cache.ObserveAccount(common.Address{})

	return &ChainContext{ChainID: chainID.Uint64(), Backend: backend}, nil
}

func (r *WalletChainContextResolver) resolveWallet(ctx context.Context) (*ChainContext, error) {
	backend, err := r.wallet.Connect(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query wallet chain id")
	}

	signer, err := r.wallet.Signer(chainID.Uint64())
	if err != nil {
		return nil, err
	}

	return &ChainContext{ChainID: chainID.Uint64(), Backend: backend, Signer: signer}, nil
}

// KeyWallet is a Wallet backed by a JSON-RPC endpoint and a local private key.
type KeyWallet struct {
	url    string
	hexKey string
	logger zerolog.Logger

	mu      sync.Mutex
	client  *ethclient.Client
	signers map[uint64]*evm.KeyedSigner
}

// NewKeyWallet creates a wallet. The endpoint is dialed on first use.
func NewKeyWallet(url, hexKey string, logger zerolog.Logger) *KeyWallet {
	return &KeyWallet{
		url:     url,
		hexKey:  hexKey,
		logger:  logger,
		signers: make(map[uint64]*evm.KeyedSigner),
	}
}

// Connect dials the wallet endpoint once and reuses the connection.
func (w *KeyWallet) Connect(ctx context.Context) (evm.Backend, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	client, err := evm.Dial(ctx, 0, w.url, w.logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect wallet endpoint")
	}

	w.client = client

	return client, nil
}

// Signer returns the keyed signer for chainID.
func (w *KeyWallet) Signer(chainID uint64) (evm.Signer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client == nil {
		return nil, errors.New("wallet endpoint is not connected")
	}

	if signer, ok := w.signers[chainID]; ok {
		return signer, nil
	}

	signer, err := evm.NewKeyedSigner(w.client, w.hexKey, new(big.Int).SetUint64(chainID), w.logger)
	if err != nil {
		return nil, err
	}

	w.signers[chainID] = signer

	return signer, nil
}

// Close releases the wallet connection.
func (w *KeyWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
}
