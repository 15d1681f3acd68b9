package services

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
	"github.com/escrowhq/escrow/utils"
)

// Vote options accepted by the governor
const (
	VoteAgainst uint8 = 0
	VoteFor     uint8 = 1
	VoteAbstain uint8 = 2
)

// GovernanceService reads voting state and submits governance transactions.
type GovernanceService struct {
	resolver ChainContextResolver
	registry *config.Registry
	cache    *ReadCache
	metrics  *MetricsService
	logger   zerolog.Logger
}

// NewGovernanceService creates a new GovernanceService
func NewGovernanceService(
	resolver ChainContextResolver,
	registry *config.Registry,
	cache *ReadCache,
	metrics *MetricsService,
	logger zerolog.Logger,
) *GovernanceService {
	return &GovernanceService{
		resolver: resolver,
		registry: registry,
		cache:    cache,
		metrics:  metrics,
		logger:   logger.With().Str(logging.FieldModule, "governance").Logger(),
	}
}

func (s *GovernanceService) core(cc *ChainContext, write bool, name, rawABI string, pick func(config.CoreAddresses) string) (*contract, error) {
	addr, err := coreContract(s.registry, cc, write, name, pick)
	if err != nil {
		return nil, err
	}

	return newContract(cc.Backend, addr, rawABI)
}

func (s *GovernanceService) governor(cc *ChainContext) (*contract, error) {
	return s.core(cc, true, "governor", config.GovernorABI, func(c config.CoreAddresses) string { return c.Governor })
}

func (s *GovernanceService) token(cc *ChainContext, write bool) (*contract, error) {
	return s.core(cc, write, "reward token", config.RewardTokenABI, func(c config.CoreAddresses) string { return c.RewardToken })
}

// VotingPower returns the votes currently delegated to account, formatted in
// token units. An empty account uses the connected wallet.
func (s *GovernanceService) VotingPower(ctx context.Context, account string) (string, error) {
	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}

	addr, ok, err := accountOrSigner(cc, account)
	if err != nil {
		return "", err
	}

	if !ok {
		return utils.FormatUnits(nil, utils.NativeDecimals), nil
	}

	token, err := s.token(cc, false)
	if err != nil {
		return "", err
	}

	return cachedRead(ctx, s.cache, cacheKey{chainID: cc.ChainID, account: addr, name: "votes"}, func(ctx context.Context) (string, error) {
		votes, err := token.callBigInt(ctx, "getVotes", addr)
		if err != nil {
			return "", models.WrapError(models.KindLedger, err, "failed to read voting power")
		}

		decimals := tokenDecimals(ctx, token.backend, token.address, func(err error) {
			s.logger.Warn().Err(err).Msg("Reward token decimals unavailable, assuming 18")
		})

		return utils.FormatUnits(votes, decimals), nil
	})
}

// MinDelay returns the timelock's minimum execution delay in seconds.
func (s *GovernanceService) MinDelay(ctx context.Context) (uint64, error) {
	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return 0, err
	}

	timelock, err := s.core(cc, false, "timelock", config.TimelockABI, func(c config.CoreAddresses) string { return c.Timelock })
	if err != nil {
		return 0, err
	}

	delay, err := timelock.callBigInt(ctx, "getMinDelay")
	if err != nil {
		return 0, models.WrapError(models.KindLedger, err, "failed to read timelock delay")
	}

	return delay.Uint64(), nil
}

// Delegate assigns the caller's votes to delegatee.
func (s *GovernanceService) Delegate(ctx context.Context, delegatee string) *models.TransactionResult {
	res, err := s.delegate(ctx, delegatee)
	return finishTransaction(s.metrics, s.logger, "delegate", res, err)
}

func (s *GovernanceService) delegate(ctx context.Context, delegatee string) (*models.TransactionResult, error) {
	to, err := parseAccount(delegatee, "delegatee")
	if err != nil {
		return nil, err
	}

	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	token, err := s.token(cc, true)
	if err != nil {
		return nil, err
	}

	committed, err := NewPipeline(s.logger, token.txStep(signer, nil, "delegate", to)).Run(ctx)
	if err != nil {
		return nil, err
	}

	// voting power of both accounts changed
	s.cache.InvalidateOnAccountChange()

	return committedResult(committed), nil
}

// Propose submits a governance proposal. values are decimal wei strings and
// calldatas hex encoded. The proposal id is read from the ProposalCreated event.
func (s *GovernanceService) Propose(
	ctx context.Context,
	targets, values, calldatas []string,
	description string,
) *models.TransactionResult {
	res, err := s.propose(ctx, targets, values, calldatas, description)
	return finishTransaction(s.metrics, s.logger, "propose", res, err)
}

func (s *GovernanceService) propose(
	ctx context.Context,
	targets, values, calldatas []string,
	description string,
) (*models.TransactionResult, error) {
	if len(targets) == 0 || len(targets) != len(values) || len(targets) != len(calldatas) {
		return nil, models.NewError(models.KindInvalidInput, "targets, values and calldatas must be non-empty and of equal length")
	}

	if strings.TrimSpace(description) == "" {
		return nil, models.NewError(models.KindInvalidInput, "description is required")
	}

	targetAddrs := make([]common.Address, len(targets))
	amounts := make([]*big.Int, len(values))
	payloads := make([][]byte, len(calldatas))

	for i := range targets {
		addr, err := parseAccount(targets[i], "target")
		if err != nil {
			return nil, err
		}
		targetAddrs[i] = addr

		amount, ok := new(big.Int).SetString(values[i], 10)
		if !ok || amount.Sign() < 0 || amount.Cmp(utils.MaxUint256) > 0 {
			return nil, models.NewError(models.KindInvalidInput, "invalid value "+values[i])
		}
		amounts[i] = amount

		payload, err := hexutil.Decode(calldatas[i])
		if err != nil {
			return nil, models.WrapError(models.KindInvalidInput, err, "invalid calldata")
		}
		payloads[i] = payload
	}

	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	governor, err := s.governor(cc)
	if err != nil {
		return nil, err
	}

	committed, err := NewPipeline(s.logger,
		governor.txStep(signer, nil, "propose", targetAddrs, amounts, payloads, description),
	).Run(ctx)
	if err != nil {
		return nil, err
	}

	res := committedResult(committed)

	if id, ok := proposalIDFromReceipt(governor, committed); ok {
		res.ProposalID = id.String()
	} else {
		s.logger.Warn().Str(logging.FieldTx, res.TxHash).Msg("ProposalCreated event not found in receipt")
	}

	return res, nil
}

func proposalIDFromReceipt(governor *contract, committed []CommittedStep) (*big.Int, bool) {
	receipt := LastReceipt(committed)
	if receipt == nil {
		return nil, false
	}

	event, ok := governor.abi.Events["ProposalCreated"]
	if !ok {
		return nil, false
	}

	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 || log.Topics[0] != event.ID || log.Address != governor.address {
			continue
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil || len(values) == 0 {
			continue
		}

		if id, ok := values[0].(*big.Int); ok {
			return id, true
		}
	}

	return nil, false
}

// CastVote votes on proposalID, a decimal proposal id, with support 0 (against),
// 1 (for) or 2 (abstain).
func (s *GovernanceService) CastVote(ctx context.Context, proposalID string, support uint8) *models.TransactionResult {
	res, err := s.castVote(ctx, proposalID, support)
	return finishTransaction(s.metrics, s.logger, "cast_vote", res, err)
}

func (s *GovernanceService) castVote(ctx context.Context, proposalID string, support uint8) (*models.TransactionResult, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(proposalID), 10)
	if !ok || id.Sign() <= 0 || id.Cmp(utils.MaxUint256) > 0 {
		return nil, models.NewError(models.KindInvalidInput, "invalid proposal id "+proposalID)
	}

	if support > VoteAbstain {
		return nil, models.NewError(models.KindInvalidInput, "support must be 0 (against), 1 (for) or 2 (abstain)")
	}

	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	governor, err := s.governor(cc)
	if err != nil {
		return nil, err
	}

	committed, err := NewPipeline(s.logger, governor.txStep(signer, nil, "castVote", id, support)).Run(ctx)
	if err != nil {
		return nil, err
	}

	res := committedResult(committed)
	res.ProposalID = id.String()

	return res, nil
}
