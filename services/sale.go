package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
	"github.com/escrowhq/escrow/utils"
)

// multiplier is transmitted to the sale as an 18-decimal fixed point value
const saleMultiplierDecimals = 18

type poolSnapshot struct {
	token    *big.Int
	native   *big.Int
	decimals uint8
}

// SaleService reads and participates in the token sale.
type SaleService struct {
	resolver ChainContextResolver
	registry *config.Registry
	cache    *ReadCache
	metrics  *MetricsService
	logger   zerolog.Logger
}

// NewSaleService creates a new SaleService
func NewSaleService(
	resolver ChainContextResolver,
	registry *config.Registry,
	cache *ReadCache,
	metrics *MetricsService,
	logger zerolog.Logger,
) *SaleService {
	return &SaleService{
		resolver: resolver,
		registry: registry,
		cache:    cache,
		metrics:  metrics,
		logger:   logger.With().Str(logging.FieldModule, "sale").Logger(),
	}
}

func (s *SaleService) sale(cc *ChainContext, write bool) (*contract, error) {
	addr, err := coreContract(s.registry, cc, write, "sale", func(c config.CoreAddresses) string { return c.Sale })
	if err != nil {
		return nil, err
	}

	return newContract(cc.Backend, addr, config.SaleABI)
}

// PriceQuote estimates the tokens received for nativeAmount at the current pool
// ratio. The result is a display estimate formatted in token units.
func (s *SaleService) PriceQuote(ctx context.Context, nativeAmount string) (string, error) {
	amount, err := parseAmount(nativeAmount, utils.NativeDecimals, "amount")
	if err != nil {
		return "", err
	}

	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}

	sale, err := s.sale(cc, false)
	if err != nil {
		return "", err
	}

	key := cacheKey{chainID: cc.ChainID, name: "sale_pool"}

	pool, err := cachedRead(ctx, s.cache, key, func(ctx context.Context) (poolSnapshot, error) {
		poolToken, err := sale.callBigInt(ctx, "poolToken")
		if err != nil {
			return poolSnapshot{}, models.WrapError(models.KindLedger, err, "failed to read token pool")
		}

		poolNative, err := sale.callBigInt(ctx, "poolNative")
		if err != nil {
			return poolSnapshot{}, models.WrapError(models.KindLedger, err, "failed to read native pool")
		}

		token, err := coreContract(s.registry, cc, false, "reward token", func(c config.CoreAddresses) string { return c.RewardToken })
		if err != nil {
			return poolSnapshot{}, err
		}

		decimals := tokenDecimals(ctx, cc.Backend, token, func(err error) {
			s.logger.Warn().Err(err).Msg("Reward token decimals unavailable, assuming 18")
		})

		return poolSnapshot{token: poolToken, native: poolNative, decimals: decimals}, nil
	})
	if err != nil {
		return "", err
	}

	return utils.FormatUnits(QuoteTokens(amount, pool.token, pool.native), pool.decimals), nil
}

// Buy contributes nativeAmount to the sale with a caller-chosen multiplier.
// An empty or zero referrer is sent as the null address.
func (s *SaleService) Buy(
	ctx context.Context,
	referrer, nativeAmount string,
	multiplier decimal.Decimal,
) *models.TransactionResult {
	res, err := s.buy(ctx, referrer, nativeAmount, multiplier)
	return finishTransaction(s.metrics, s.logger, "buy", res, err)
}

func (s *SaleService) buy(
	ctx context.Context,
	referrer, nativeAmount string,
	multiplier decimal.Decimal,
) (*models.TransactionResult, error) {
	if err := utils.ValidateMultiplier(multiplier); err != nil {
		return nil, models.WrapError(models.KindInvalidInput, err, "invalid multiplier")
	}

	amount, err := parseAmount(nativeAmount, utils.NativeDecimals, "amount")
	if err != nil {
		return nil, err
	}

	if amount.Sign() == 0 {
		return nil, models.NewError(models.KindInvalidInput, "amount must be positive")
	}

	referrerAddr := common.Address{}
	if referrer != "" && referrer != "0" {
		if referrerAddr, err = parseAccount(referrer, "referrer"); err != nil {
			return nil, err
		}
	}

	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	sale, err := s.sale(cc, true)
	if err != nil {
		return nil, err
	}

	fixedMultiplier := utils.ToFixedPoint(multiplier, saleMultiplierDecimals)

	committed, err := NewPipeline(s.logger, sale.txStep(signer, amount, "buy", referrerAddr, fixedMultiplier)).Run(ctx)
	if err != nil {
		return nil, err
	}

	// the pool moved
	s.cache.InvalidateOnAccountChange()

	return committedResult(committed), nil
}

// Contribution reads the sale position of account. An empty account uses the
// connected wallet; without one a zeroed record is returned.
func (s *SaleService) Contribution(ctx context.Context, account string) (*models.ContributionRecord, error) {
	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	addr, ok, err := accountOrSigner(cc, account)
	if err != nil {
		return nil, err
	}

	if !ok {
		return zeroContribution(), nil
	}

	sale, err := s.sale(cc, false)
	if err != nil {
		return nil, err
	}

	values, err := sale.call(ctx, "contributions", addr)
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read contribution")
	}

	amounts := make([]string, 4)
	for i := range amounts {
		v, _ := values[i].(*big.Int)
		amounts[i] = utils.FormatUnits(v, utils.NativeDecimals)
	}

	return &models.ContributionRecord{
		Contribution:         amounts[0],
		WeightedContribution: amounts[1],
		EthReceived:          amounts[2],
		TokenWithdrawn:       amounts[3],
	}, nil
}

// ClaimTokens withdraws the caller's purchased tokens once the sale allows it.
func (s *SaleService) ClaimTokens(ctx context.Context) *models.TransactionResult {
	res, err := s.claimTokens(ctx)
	return finishTransaction(s.metrics, s.logger, "claim_tokens", res, err)
}

func (s *SaleService) claimTokens(ctx context.Context) (*models.TransactionResult, error) {
	cc, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	sale, err := s.sale(cc, true)
	if err != nil {
		return nil, err
	}

	committed, err := NewPipeline(s.logger, sale.txStep(signer, nil, "claimTokens")).Run(ctx)
	if err != nil {
		return nil, err
	}

	return committedResult(committed), nil
}

func zeroContribution() *models.ContributionRecord {
	zero := utils.FormatUnits(nil, utils.NativeDecimals)

	return &models.ContributionRecord{
		Contribution:         zero,
		WeightedContribution: zero,
		EthReceived:          zero,
		TokenWithdrawn:       zero,
	}
}

// accountOrSigner resolves the account a read is about: the given address, or
// the connected wallet when empty. ok is false when neither is available.
func accountOrSigner(cc *ChainContext, account string) (common.Address, bool, error) {
	if account != "" {
		addr, err := parseAccount(account, "account")
		return addr, err == nil, err
	}

	if cc.Signer == nil {
		return common.Address{}, false, nil
	}

	return cc.Signer.Address(), true, nil
}
