package evm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/escrowhq/escrow/logging"
)

// DialPublicClients provisions a map of [chainID] => ethclient.Client for the
// given read endpoints. Endpoints that cannot be reached are logged and skipped,
// so a single unavailable chain does not prevent startup.
func DialPublicClients(
	ctx context.Context,
	urls map[uint64]string,
	logger zerolog.Logger,
) map[uint64]*ethclient.Client {
	var (
		clients             = make(map[uint64]*ethclient.Client, len(urls))
		mu                  = sync.Mutex{}
		errGroup, ctxShared = errgroup.WithContext(ctx)
	)

	for chainID, url := range urls {
		errGroup.Go(func() error {
			client, err := Dial(ctxShared, chainID, url, logger)
			if err != nil {
				logger.Warn().Err(err).Uint64(logging.FieldChain, chainID).Msg("Skipping unreachable public endpoint")
				return nil
			}

			mu.Lock()
			clients[chainID] = client
			mu.Unlock()

			return nil
		})
	}

	_ = errGroup.Wait()

	return clients
}

// Dial creates a new ethclient.Client for url and verifies that it serves chainID.
// A zero chainID skips the chain check.
func Dial(
	ctx context.Context,
	chainID uint64,
	url string,
	logger zerolog.Logger,
) (*ethclient.Client, error) {
	logger = logger.With().
		Uint64(logging.FieldChain, chainID).
		Str(logging.FieldModule, "evm_client").
		Logger()

	isWebSocket := isWebSocketURL(url)

	var evmClient *ethclient.Client

	if isWebSocket {
		rpcClient, err := rpc.DialWebsocket(ctx, url, "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to create WebSocket RPC client")
		}

		evmClient = ethclient.NewClient(rpcClient)
	} else {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to chain")
		}

		evmClient = client
	}

	// verify that the client works
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	remoteChainID, err := evmClient.ChainID(ctx)
	if err != nil {
		evmClient.Close()
		return nil, errors.Wrap(err, "failed to get chain id")
	}

	if chainID != 0 && remoteChainID.Uint64() != chainID {
		evmClient.Close()
		return nil, errors.Errorf("endpoint serves chain %d, expected %d", remoteChainID.Uint64(), chainID)
	}

	bn, err := evmClient.BlockNumber(ctx)
	if err != nil {
		evmClient.Close()
		return nil, errors.Wrap(err, "failed to get block number")
	}

	logger.Info().
		Bool("is_websocket", isWebSocket).
		Uint64(logging.FieldBlock, bn).
		Msg("Successfully created EVM client")

	return evmClient, nil
}

func isWebSocketURL(url string) bool {
	return strings.HasPrefix(url, "wss://") || strings.HasPrefix(url, "ws://")
}
