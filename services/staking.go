package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
	"github.com/escrowhq/escrow/utils"
)

// StakingService reads and manages positions in the reward pool.
type StakingService struct {
	resolver ChainContextResolver
	registry *config.Registry
	metrics  *MetricsService
	logger   zerolog.Logger
}

// NewStakingService creates a new StakingService
func NewStakingService(
	resolver ChainContextResolver,
	registry *config.Registry,
	metrics *MetricsService,
	logger zerolog.Logger,
) *StakingService {
	return &StakingService{
		resolver: resolver,
		registry: registry,
		metrics:  metrics,
		logger:   logger.With().Str(logging.FieldModule, "staking").Logger(),
	}
}

func (s *StakingService) pool(cc *ChainContext, write bool) (*contract, error) {
	addr, err := coreContract(s.registry, cc, write, "reward pool", func(c config.CoreAddresses) string { return c.RewardPool })
	if err != nil {
		return nil, err
	}

	return newContract(cc.Backend, addr, config.RewardPoolABI)
}

func (s *StakingService) rewardToken(cc *ChainContext, write bool) (*contract, error) {
	addr, err := coreContract(s.registry, cc, write, "reward token", func(c config.CoreAddresses) string { return c.RewardToken })
	if err != nil {
		return nil, err
	}

	return newContract(cc.Backend, addr, config.RewardTokenABI)
}

func (s *StakingService) decimals(ctx context.Context, token *contract) uint8 {
	return tokenDecimals(ctx, token.backend, token.address, func(err error) {
		s.logger.Warn().Err(err).Msg("Reward token decimals unavailable, assuming 18")
	})
}

// StakeInfo sums the stake slots of account, with matured stakes also counted
// as available. Maturity is judged against the latest block time. An empty
// account uses the connected wallet; without one a zeroed result is returned.
func (s *StakingService) StakeInfo(ctx context.Context, account string) (*models.StakeInfo, error) {
	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	addr, ok, err := accountOrSigner(cc, account)
	if err != nil {
		return nil, err
	}

	if !ok {
		return zeroStakeInfo(), nil
	}

	pool, err := s.pool(cc, false)
	if err != nil {
		return nil, err
	}

	token, err := s.rewardToken(cc, false)
	if err != nil {
		return nil, err
	}

	header, err := cc.Backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read latest block")
	}

	positions := s.readStakes(ctx, pool, addr, header.Time)

	if len(positions) == 0 {
		return zeroStakeInfo(), nil
	}

	decimals := s.decimals(ctx, token)

	total, available := new(big.Int), new(big.Int)
	out := make([]models.StakePosition, 0, len(positions))

	for _, p := range positions {
		total.Add(total, p.amount)
		if p.position.IsAvailable {
			available.Add(available, p.amount)
		}

		p.position.Amount = utils.FormatUnits(p.amount, decimals)
		out = append(out, p.position)
	}

	return &models.StakeInfo{
		TotalAmount:     utils.FormatUnits(total, decimals),
		AvailableAmount: utils.FormatUnits(available, decimals),
		Positions:       out,
	}, nil
}

type stakeSlot struct {
	amount   *big.Int
	position models.StakePosition
}

// readStakes scans at most MaxStakeSlots slots, stopping at the first empty or
// unreadable one.
func (s *StakingService) readStakes(ctx context.Context, pool *contract, account common.Address, now uint64) []stakeSlot {
	slots := make([]stakeSlot, 0, MaxStakeSlots)

	for i := 0; i < MaxStakeSlots; i++ {
		values, err := pool.call(ctx, "stakes", account, big.NewInt(int64(i)))
		if err != nil {
			// out-of-range slots revert
			s.logger.Debug().Err(err).Int("slot", i).Msg("Stake scan stopped")
			break
		}

		amount, _ := values[0].(*big.Int)
		stakeTime, _ := values[1].(*big.Int)
		startTime, _ := values[2].(*big.Int)

		if amount == nil || stakeTime == nil || startTime == nil {
			break
		}

		if amount.Sign() == 0 && stakeTime.Sign() == 0 {
			break
		}

		multiplier, _ := StakeMultiplier(stakeTime.Uint64()).Float64()

		slots = append(slots, stakeSlot{
			amount: amount,
			position: models.StakePosition{
				Index:       i,
				StakeTime:   stakeTime.Uint64(),
				StartTime:   startTime.Uint64(),
				Multiplier:  multiplier,
				IsAvailable: IsMatured(now, startTime.Uint64(), stakeTime.Uint64()),
			},
		})
	}

	return slots
}

// NewStake approves amount of the reward token to the pool and opens a stake
// locked for stakeTime seconds.
func (s *StakingService) NewStake(ctx context.Context, amount string, stakeTime uint64) *models.TransactionResult {
	res, err := s.newStake(ctx, amount, stakeTime)
	return finishTransaction(s.metrics, s.logger, "new_stake", res, err)
}

func (s *StakingService) newStake(ctx context.Context, amount string, stakeTime uint64) (*models.TransactionResult, error) {
	if stakeTime == 0 {
		return nil, models.NewError(models.KindInvalidInput, "stake time must be positive")
	}

	cc, signer, pool, err := s.writeContext(ctx)
	if err != nil {
		return nil, err
	}

	token, err := s.rewardToken(cc, true)
	if err != nil {
		return nil, err
	}

	units, err := parseAmount(amount, s.decimals(ctx, token), "amount")
	if err != nil {
		return nil, err
	}

	if units.Sign() == 0 {
		return nil, models.NewError(models.KindInvalidInput, "amount must be positive")
	}

	committed, err := NewPipeline(s.logger,
		token.txStep(signer, nil, "approve", pool.address, units),
		pool.txStep(signer, nil, "newStake", units, new(big.Int).SetUint64(stakeTime)),
	).Run(ctx)
	if err != nil {
		return nil, err
	}

	return committedResult(committed), nil
}

// ClaimAndWithdraw claims rewards and withdraws matured stakes.
func (s *StakingService) ClaimAndWithdraw(ctx context.Context) *models.TransactionResult {
	res, err := s.poolCall(ctx, "claimRewardsAndWithdrawStake")
	return finishTransaction(s.metrics, s.logger, "claim_and_withdraw", res, err)
}

// ClaimAndReset claims rewards and restakes matured stakes for stakeTime seconds.
func (s *StakingService) ClaimAndReset(ctx context.Context, stakeTime uint64) *models.TransactionResult {
	if stakeTime == 0 {
		err := models.NewError(models.KindInvalidInput, "stake time must be positive")
		return finishTransaction(s.metrics, s.logger, "claim_and_reset", nil, err)
	}

	res, err := s.poolCall(ctx, "claimRewardsAndResetStake", new(big.Int).SetUint64(stakeTime))
	return finishTransaction(s.metrics, s.logger, "claim_and_reset", res, err)
}

func (s *StakingService) poolCall(ctx context.Context, method string, args ...interface{}) (*models.TransactionResult, error) {
	_, signer, pool, err := s.writeContext(ctx)
	if err != nil {
		return nil, err
	}

	committed, err := NewPipeline(s.logger, pool.txStep(signer, nil, method, args...)).Run(ctx)
	if err != nil {
		return nil, err
	}

	return committedResult(committed), nil
}

func (s *StakingService) writeContext(ctx context.Context) (*ChainContext, evm.Signer, *contract, error) {
	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	signer, err := cc.RequireSigner()
	if err != nil {
		return nil, nil, nil, err
	}

	pool, err := s.pool(cc, true)
	if err != nil {
		return nil, nil, nil, err
	}

	return cc, signer, pool, nil
}

func zeroStakeInfo() *models.StakeInfo {
	zero := utils.FormatUnits(nil, utils.NativeDecimals)

	return &models.StakeInfo{
		TotalAmount:     zero,
		AvailableAmount: zero,
		Positions:       []models.StakePosition{},
	}
}
