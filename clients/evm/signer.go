package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/logging"
)

const (
	defaultPollInterval = 2 * time.Second

	// gas estimates are padded by this percentage
	gasLimitBufferPercent = 20
)

// KeyedSigner signs with a local private key and waits for inclusion.
type KeyedSigner struct {
	backend      TxBackend
	opts         *bind.TransactOpts
	chainID      *big.Int
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewKeyedSigner creates a signer from a hex private key (without 0x) bound to chainID.
func NewKeyedSigner(
	backend TxBackend,
	hexKey string,
	chainID *big.Int,
	logger zerolog.Logger,
) (*KeyedSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	return NewKeyedSignerFromKey(backend, key, chainID, logger)
}

// NewKeyedSignerFromKey creates a signer from an ECDSA key bound to chainID.
func NewKeyedSignerFromKey(
	backend TxBackend,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
	logger zerolog.Logger,
) (*KeyedSigner, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transactor")
	}

	return &KeyedSigner{
		backend:      backend,
		opts:         opts,
		chainID:      new(big.Int).Set(chainID),
		pollInterval: defaultPollInterval,
		logger: logger.With().
			Str(logging.FieldModule, "evm_signer").
			Str(logging.FieldAccount, opts.From.Hex()).
			Uint64(logging.FieldChain, chainID.Uint64()).
			Logger(),
	}, nil
}

// WithPollInterval sets how often receipts are polled while waiting for inclusion.
func (s *KeyedSigner) WithPollInterval(d time.Duration) *KeyedSigner {
	s.pollInterval = d
	return s
}

// Address returns the signing account.
func (s *KeyedSigner) Address() common.Address {
	return s.opts.From
}

// Send builds, signs and broadcasts a transaction, then waits for its receipt.
func (s *KeyedSigner) Send(
	ctx context.Context,
	to common.Address,
	value *big.Int,
	data []byte,
) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}

	tx, err := s.buildTx(ctx, to, value, data)
	if err != nil {
		return nil, err
	}

	signed, err := s.opts.Signer(s.opts.From, tx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	s.logger.Info().
		Str(logging.FieldTx, signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", signed.Nonce()).
		Msg("Transaction submitted")

	receipt, err := WaitMined(ctx, s.backend, signed.Hash(), s.pollInterval)
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Errorf("transaction %s reverted", signed.Hash().Hex())
	}

	return receipt, nil
}

func (s *KeyedSigner) buildTx(
	ctx context.Context,
	to common.Address,
	value *big.Int,
	data []byte,
) (*types.Transaction, error) {
	nonce, err := s.backend.PendingNonceAt(ctx, s.opts.From)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get nonce")
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.opts.From,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate gas")
	}
	gas += gas * gasLimitBufferPercent / 100

	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest header")
	}

	if head.BaseFee == nil {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get gas price")
		}

		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		}), nil
	}

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas tip cap")
	}

	// fee cap leaves room for two full base fee increases
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	}), nil
}

// WaitMined polls for the receipt of txHash until it is available or ctx is done.
func WaitMined(
	ctx context.Context,
	backend Backend,
	txHash common.Hash,
	interval time.Duration,
) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, errors.Wrapf(err, "failed to get receipt for %s", txHash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for %s", txHash.Hex())
		case <-ticker.C:
		}
	}
}
