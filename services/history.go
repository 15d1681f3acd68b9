package services

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
)

// Factory events that make up a wallet's purchase history. The participant is
// the first indexed argument of each.
var historyEvents = []string{
	"BuyerUnresolvedPurchase",
	"SellerUnresolvedPurchase",
	"BuyerCompletedPurchase",
	"SellerCompletedPurchase",
}

// BlockRange is an inclusive range of block heights.
type BlockRange struct {
	From uint64
	To   uint64
}

// BlockRanges lazily splits [from, to] into consecutive ranges of at most size blocks.
func BlockRanges(from, to, size uint64) iter.Seq[BlockRange] {
	return func(yield func(BlockRange) bool) {
		if size == 0 || from > to {
			return
		}

		for start := from; start <= to; {
			end := start + size - 1
			if end > to || end < start {
				end = to
			}

			if !yield(BlockRange{From: start, To: end}) {
				return
			}

			if end == to {
				return
			}

			start = end + 1
		}
	}
}

// HistoryService reconstructs a wallet's purchase history from factory events.
type HistoryService struct {
	resolver    ChainContextResolver
	registry    *config.Registry
	chunkSize   uint64
	concurrency int
	metrics     *MetricsService
	logger      zerolog.Logger
}

// NewHistoryService creates a new HistoryService scanning chunkSize blocks per
// query with at most concurrency queries in flight.
func NewHistoryService(
	resolver ChainContextResolver,
	registry *config.Registry,
	chunkSize uint64,
	concurrency int,
	metrics *MetricsService,
	logger zerolog.Logger,
) *HistoryService {
	if chunkSize == 0 {
		chunkSize = config.DefaultHistoryChunkSize
	}

	if concurrency < 1 {
		concurrency = config.DefaultHistoryConcurrency
	}

	return &HistoryService{
		resolver:    resolver,
		registry:    registry,
		chunkSize:   chunkSize,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With().Str(logging.FieldModule, "history").Logger(),
	}
}

// GetHistory scans from the deployment block to the chain head and returns the
// wallet's entries, most recent first. Entries whose block or receipt cannot be
// fetched are dropped. Failed chunks are skipped; an error is returned only when
// every chunk failed.
func (s *HistoryService) GetHistory(ctx context.Context, wallet string) ([]models.TransactionLogEntry, error) {
	walletAddr, err := parseAccount(wallet, "wallet")
	if err != nil {
		return nil, err
	}

	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	profile, ok := s.registry.Resolve(cc.ChainID)
	if !ok {
		return nil, models.NewError(
			models.KindUnsupportedNetwork,
			fmt.Sprintf("no escrow deployment for chain %d", cc.ChainID),
		)
	}

	factoryAddr, err := parseContractAddress(profile.FactoryAddress, "escrow factory", cc.ChainID)
	if err != nil {
		return nil, err
	}

	factoryABI, err := parseABI(profile.FactoryABI)
	if err != nil {
		return nil, err
	}

	eventIDs := make([]common.Hash, 0, len(historyEvents))
	eventNames := make(map[common.Hash]string, len(historyEvents))
	for _, name := range historyEvents {
		event, ok := factoryABI.Events[name]
		if !ok {
			return nil, models.NewError(models.KindMisconfiguredNetwork, "factory ABI lacks event "+name)
		}
		eventIDs = append(eventIDs, event.ID)
		eventNames[event.ID] = name
	}

	head, err := cc.Backend.BlockNumber(ctx)
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read block height")
	}

	logger := s.logger.With().
		Uint64(logging.FieldChain, cc.ChainID).
		Str(logging.FieldAccount, walletAddr.Hex()).
		Logger()

	start := time.Now()
	defer func() { s.metrics.ObserveHistoryScan(cc.ChainID, time.Since(start)) }()

	query := ethereum.FilterQuery{
		Addresses: []common.Address{factoryAddr},
		Topics: [][]common.Hash{
			eventIDs,
			{common.BytesToHash(walletAddr.Bytes())},
		},
	}

	logs, err := s.scan(ctx, cc, query, profile.DeploymentBlock, head, logger)
	if err != nil {
		return nil, err
	}

	entries := s.enrich(ctx, cc.Backend, logs, eventNames, logger)

	slices.SortFunc(entries, func(a, b models.TransactionLogEntry) int {
		if c := cmp.Compare(b.BlockNumber, a.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(b.LogIndex, a.LogIndex)
	})

	logger.Debug().
		Int("logs", len(logs)).
		Int("entries", len(entries)).
		Uint64(logging.FieldBlock, head).
		Msg("History scan finished")

	return entries, nil
}

// scan queries every chunk of [from, to] with bounded concurrency.
func (s *HistoryService) scan(
	ctx context.Context,
	cc *ChainContext,
	query ethereum.FilterQuery,
	from, to uint64,
	logger zerolog.Logger,
) ([]types.Log, error) {
	var (
		mu      sync.Mutex
		logs    []types.Log
		total   int
		failed  int
		lastErr error
		group   errgroup.Group
	)

	group.SetLimit(s.concurrency)

	for r := range BlockRanges(from, to, s.chunkSize) {
		total++

		q := query
		q.FromBlock = new(big.Int).SetUint64(r.From)
		q.ToBlock = new(big.Int).SetUint64(r.To)

		group.Go(func() error {
			chunk, err := cc.Backend.FilterLogs(ctx, q)

			s.metrics.RecordHistoryChunk(cc.ChainID, err == nil)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed++
				lastErr = err
				logger.Warn().Err(err).
					Uint64("from_block", r.From).
					Uint64("to_block", r.To).
					Msg("Skipping history chunk")
				return nil
			}

			logs = append(logs, chunk...)

			return nil
		})
	}

	_ = group.Wait()

	if total > 0 && failed == total {
		return nil, models.WrapError(models.KindLedger, lastErr, "history scan failed")
	}

	return logs, nil
}

// enrich resolves timestamps and receipts with the same concurrency bound.
func (s *HistoryService) enrich(
	ctx context.Context,
	backend evm.Backend,
	logs []types.Log,
	eventNames map[common.Hash]string,
	logger zerolog.Logger,
) []models.TransactionLogEntry {
	var (
		mu      sync.Mutex
		entries = make([]models.TransactionLogEntry, 0, len(logs))
		group   errgroup.Group
	)

	group.SetLimit(s.concurrency)

	for _, log := range logs {
		group.Go(func() error {
			entry, err := enrichLog(ctx, backend, log, eventNames)
			if err != nil {
				logger.Debug().Err(err).Str(logging.FieldTx, log.TxHash.Hex()).Msg("Dropping history entry")
				return nil
			}

			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()

			return nil
		})
	}

	_ = group.Wait()

	return entries
}

func enrichLog(
	ctx context.Context,
	backend evm.Backend,
	log types.Log,
	eventNames map[common.Hash]string,
) (models.TransactionLogEntry, error) {
	if len(log.Topics) < 3 {
		return models.TransactionLogEntry{}, fmt.Errorf("log %s-%d has %d topics", log.TxHash.Hex(), log.Index, len(log.Topics))
	}

	header, err := backend.HeaderByNumber(ctx, new(big.Int).SetUint64(log.BlockNumber))
	if err != nil {
		return models.TransactionLogEntry{}, err
	}

	receipt, err := backend.TransactionReceipt(ctx, log.TxHash)
	if err != nil {
		return models.TransactionLogEntry{}, err
	}

	status := models.LogStatusSuccess
	switch {
	case log.Removed:
		status = models.LogStatusPending
	case receipt.Status != types.ReceiptStatusSuccessful:
		status = models.LogStatusFailed
	}

	return models.TransactionLogEntry{
		ID:          fmt.Sprintf("%s-%d", log.TxHash.Hex(), log.Index),
		Timestamp:   time.Unix(int64(header.Time), 0).UTC(),
		Action:      eventNames[log.Topics[0]],
		Status:      status,
		TxHash:      log.TxHash.Hex(),
		From:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		GasUsed:     receipt.GasUsed,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}
