package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
	"github.com/escrowhq/escrow/utils"
)

// EscrowService drives the purchase lifecycle of escrow instances:
// create, confirm, release and abort, plus a read-only projection.
type EscrowService struct {
	resolver ChainContextResolver
	registry *config.Registry
	metrics  *MetricsService
	logger   zerolog.Logger

	// recoveryStrategies builds the strategies used to find a new escrow
	// instance in the logs of a factory transaction.
	recoveryStrategies func(factoryABI abi.ABI, factory common.Address) []AddressRecoveryStrategy
}

// NewEscrowService creates a new EscrowService
func NewEscrowService(
	resolver ChainContextResolver,
	registry *config.Registry,
	metrics *MetricsService,
	logger zerolog.Logger,
) *EscrowService {
	return &EscrowService{
		resolver:           resolver,
		registry:           registry,
		metrics:            metrics,
		logger:             logger.With().Str(logging.FieldModule, "escrow").Logger(),
		recoveryStrategies: DefaultRecoveryStrategies,
	}
}

// WithRecoveryStrategies overrides how new escrow instances are identified.
func (s *EscrowService) WithRecoveryStrategies(
	fn func(factoryABI abi.ABI, factory common.Address) []AddressRecoveryStrategy,
) *EscrowService {
	s.recoveryStrategies = fn
	return s
}

// escrowSession is the resolved state shared by every escrow operation.
type escrowSession struct {
	cc      *ChainContext
	profile *config.NetworkProfile
	logger  zerolog.Logger
}

func (s *EscrowService) session(ctx context.Context) (*escrowSession, error) {
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

	return &escrowSession{
		cc:      cc,
		profile: profile,
		logger:  s.logger.With().Uint64(logging.FieldChain, cc.ChainID).Logger(),
	}, nil
}

func (s *escrowSession) clone(address common.Address) (*contract, error) {
	return newContract(s.cc.Backend, address, s.profile.CloneABI)
}

func (s *escrowSession) decimals(ctx context.Context, asset models.AssetRef) uint8 {
	if asset.IsNative() {
		return utils.NativeDecimals
	}

	return tokenDecimals(ctx, s.cc.Backend, asset.Token(), func(err error) {
		s.logger.Warn().Err(err).
			Str("token", asset.String()).
			Msg("Token decimals unavailable, assuming 18")
	})
}

// Create instantiates an escrow instance through the factory and funds it with
// price plus collateral. Native purchases attach the total as value; ERC-20
// purchases approve the total to the new instance first.
func (s *EscrowService) Create(ctx context.Context, seller, price, collateral, tokenAddress string) *models.TransactionResult {
	res, err := s.create(ctx, seller, price, collateral, tokenAddress)
	return s.finish("create", res, err)
}

func (s *EscrowService) create(
	ctx context.Context,
	seller, price, collateral, tokenAddress string,
) (*models.TransactionResult, error) {
	sellerAddr, err := parseAccount(seller, "seller")
	if err != nil {
		return nil, err
	}

	asset, err := models.ParseAssetRef(tokenAddress)
	if err != nil {
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := session.cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	factoryAddr, err := parseContractAddress(session.profile.FactoryAddress, "escrow factory", session.cc.ChainID)
	if err != nil {
		return nil, err
	}

	decimals := session.decimals(ctx, asset)

	priceUnits, err := parseAmount(price, decimals, "price")
	if err != nil {
		return nil, err
	}

	collateralUnits, err := parseAmount(collateral, decimals, "collateral")
	if err != nil {
		return nil, err
	}

	total := new(big.Int).Add(priceUnits, collateralUnits)
	if total.Cmp(utils.MaxUint256) > 0 {
		return nil, models.WrapError(models.KindInvalidInput, utils.ErrAmountOverflow, "invalid price and collateral")
	}

	factory, err := newContract(session.cc.Backend, factoryAddr, session.profile.FactoryABI)
	if err != nil {
		return nil, err
	}

	var escrowAddr common.Address

	createStep := Step{
		Name: "createContract",
		Run: func(ctx context.Context) (*types.Receipt, error) {
			data, err := factory.abi.Pack("createContract")
			if err != nil {
				return nil, err
			}

			receipt, err := signer.Send(ctx, factoryAddr, nil, data)
			if err != nil {
				return nil, err
			}

			addr, strategy, err := RecoverPurchaseAddress(receipt.Logs, s.recoveryStrategies(factory.abi, factoryAddr))
			if err != nil {
				return nil, err
			}

			session.logger.Info().
				Str(logging.FieldPurchase, addr.Hex()).
				Str("strategy", strategy).
				Msg("Recovered escrow instance")

			escrowAddr = addr

			return receipt, nil
		},
	}

	pipeline := NewPipeline(session.logger, createStep).WithNote(func() string {
		if escrowAddr == (common.Address{}) {
			return ""
		}
		return "escrow instance " + escrowAddr.Hex() + " was created but not funded"
	})

	// escrowAddr is only known once the first step ran
	lazyClone := func(value *big.Int, method string, args func() []interface{}) Step {
		return Step{
			Name: method,
			Run: func(ctx context.Context) (*types.Receipt, error) {
				clone, err := session.clone(escrowAddr)
				if err != nil {
					return nil, err
				}
				return clone.txStep(signer, value, method, args()...).Run(ctx)
			},
		}
	}

	if asset.IsNative() {
		pipeline.Then(lazyClone(total, "createPurchase", func() []interface{} {
			return []interface{}{sellerAddr, priceUnits, collateralUnits, asset.Token()}
		}))
	} else {
		token, err := newContract(session.cc.Backend, asset.Token(), config.ERC20ABI)
		if err != nil {
			return nil, err
		}

		pipeline.Then(Step{
			Name: "approve",
			Run: func(ctx context.Context) (*types.Receipt, error) {
				return token.txStep(signer, nil, "approve", escrowAddr, total).Run(ctx)
			},
		})
		pipeline.Then(lazyClone(nil, "createPurchase", func() []interface{} {
			return []interface{}{sellerAddr, priceUnits, collateralUnits, asset.Token()}
		}))
	}

	committed, err := pipeline.Run(ctx)
	if err != nil {
		return nil, err
	}

	res := committedResult(committed)
	res.PurchaseID = escrowAddr.Hex()

	return res, nil
}

// Confirm locks the seller's collateral. Only the on-chain seller may confirm,
// and only while the purchase awaits confirmation.
func (s *EscrowService) Confirm(ctx context.Context, purchaseID string) *models.TransactionResult {
	res, err := s.transition(ctx, purchaseID, transition{
		method:   "confirmPurchase",
		role:     "seller",
		required: models.StateCreated,
		funded:   true,
	})
	return s.finish("confirm", res, err)
}

// Release pays out the escrow. Only the on-chain buyer may release, and only
// after the seller confirmed.
func (s *EscrowService) Release(ctx context.Context, purchaseID string) *models.TransactionResult {
	res, err := s.transition(ctx, purchaseID, transition{
		method:   "releasePurchase",
		role:     "buyer",
		required: models.StateConfirmed,
	})
	return s.finish("release", res, err)
}

// Abort cancels a purchase before the seller locked collateral. Only the
// on-chain buyer may abort.
func (s *EscrowService) Abort(ctx context.Context, purchaseID string) *models.TransactionResult {
	res, err := s.transition(ctx, purchaseID, transition{
		method:   "abortPurchase",
		role:     "buyer",
		required: models.StateCreated,
	})
	return s.finish("abort", res, err)
}

type transition struct {
	method   string
	role     string // seller or buyer, the ledger getter of the authorized caller
	required uint8

	// funded transitions lock collateral: attached as value for native
	// escrows, approved beforehand for ERC-20 ones
	funded bool
}

func (s *EscrowService) transition(ctx context.Context, purchaseID string, t transition) (*models.TransactionResult, error) {
	purchaseAddr, err := parseAccount(purchaseID, "purchase")
	if err != nil {
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	signer, err := session.cc.RequireSigner()
	if err != nil {
		return nil, err
	}

	if err := requireCode(ctx, session.cc.Backend, purchaseAddr); err != nil {
		return nil, err
	}

	clone, err := session.clone(purchaseAddr)
	if err != nil {
		return nil, err
	}

	// advisory checks, the escrow contract enforces the same rules
	authorized, err := clone.callAddress(ctx, t.role)
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read "+t.role)
	}

	if !utils.EqualAddresses(authorized.Hex(), signer.Address().Hex()) {
		return nil, models.NewError(
			models.KindUnauthorized,
			fmt.Sprintf("caller %s is not the %s of purchase %s", signer.Address().Hex(), t.role, purchaseAddr.Hex()),
		)
	}

	state, err := clone.callUint8(ctx, "state")
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read state")
	}

	if state != t.required {
		return nil, models.NewError(
			models.KindInvalidState,
			fmt.Sprintf("purchase %s is %s, %s requires %s",
				purchaseAddr.Hex(), models.StatusFromState(state), t.method, models.StatusFromState(t.required)),
		)
	}

	pipeline := NewPipeline(session.logger.With().Str(logging.FieldPurchase, purchaseAddr.Hex()).Logger())

	if !t.funded {
		pipeline.Then(clone.txStep(signer, nil, t.method))
	} else {
		collateral, asset, err := readCollateral(ctx, clone)
		if err != nil {
			return nil, err
		}

		if asset.IsNative() {
			pipeline.Then(clone.txStep(signer, collateral, t.method))
		} else {
			token, err := newContract(session.cc.Backend, asset.Token(), config.ERC20ABI)
			if err != nil {
				return nil, err
			}

			pipeline.Then(token.txStep(signer, nil, "approve", purchaseAddr, collateral))
			pipeline.Then(clone.txStep(signer, nil, t.method))
		}
	}

	committed, err := pipeline.Run(ctx)
	if err != nil {
		return nil, err
	}

	res := committedResult(committed)
	res.PurchaseID = purchaseAddr.Hex()

	return res, nil
}

func readCollateral(ctx context.Context, clone *contract) (*big.Int, models.AssetRef, error) {
	collateral, err := clone.callBigInt(ctx, "collateral")
	if err != nil {
		return nil, models.AssetRef{}, models.WrapError(models.KindLedger, err, "failed to read collateral")
	}

	token, err := clone.callAddress(ctx, "tokenAddress")
	if err != nil {
		return nil, models.AssetRef{}, models.WrapError(models.KindLedger, err, "failed to read token address")
	}

	asset, err := models.ParseAssetRef(token.Hex())
	if err != nil {
		return nil, models.AssetRef{}, err
	}

	return collateral, asset, nil
}

// GetDetails projects an escrow instance into a PurchaseRecord. Fields are read
// one after another to stay within public endpoint rate limits, and the record is
// timestamped with the latest block time.
func (s *EscrowService) GetDetails(ctx context.Context, purchaseID string) (*models.PurchaseRecord, error) {
	purchaseAddr, err := parseAccount(purchaseID, "purchase")
	if err != nil {
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	backend := session.cc.Backend

	if err := requireCode(ctx, backend, purchaseAddr); err != nil {
		return nil, err
	}

	clone, err := session.clone(purchaseAddr)
	if err != nil {
		return nil, err
	}

	buyer, err := clone.callAddress(ctx, "buyer")
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read buyer")
	}

	seller, err := clone.callAddress(ctx, "seller")
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read seller")
	}

	price, err := clone.callBigInt(ctx, "price")
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read price")
	}

	collateral, asset, err := readCollateral(ctx, clone)
	if err != nil {
		return nil, err
	}

	state, err := clone.callUint8(ctx, "state")
	if err != nil {
		return nil, models.WrapError(models.KindLedger, err, "failed to read state")
	}

	decimals := session.decimals(ctx, asset)

	timestamp, err := latestBlockTime(ctx, backend)
	if err != nil {
		return nil, err
	}

	return &models.PurchaseRecord{
		ID:           purchaseAddr.Hex(),
		Seller:       seller.Hex(),
		Buyer:        buyer.Hex(),
		Price:        utils.FormatUnits(price, decimals),
		Collateral:   utils.FormatUnits(collateral, decimals),
		TokenAddress: asset.String(),
		Status:       models.StatusFromState(state),
		Timestamp:    timestamp,
	}, nil
}

func (s *EscrowService) finish(operation string, res *models.TransactionResult, err error) *models.TransactionResult {
	return finishTransaction(s.metrics, s.logger, operation, res, err)
}

// finishTransaction converts an operation outcome into its envelope
func finishTransaction(
	metrics *MetricsService,
	logger zerolog.Logger,
	operation string,
	res *models.TransactionResult,
	err error,
) *models.TransactionResult {
	metrics.RecordTransaction(operation, err == nil)

	if err != nil {
		logger.Error().Err(err).Str("operation", operation).Str("kind", string(models.KindOf(err))).Msg("Operation failed")
		return models.Failed(err)
	}

	logger.Info().Str("operation", operation).Str(logging.FieldTx, res.TxHash).Msg("Operation succeeded")

	return res
}

func parseAmount(amount string, decimals uint8, name string) (*big.Int, error) {
	units, err := utils.ParseUnits(amount, decimals)
	if err != nil {
		return nil, models.WrapError(models.KindInvalidInput, err, "invalid "+name)
	}

	return units, nil
}

func latestBlockTime(ctx context.Context, backend evm.Backend) (time.Time, error) {
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, models.WrapError(models.KindLedger, err, "failed to read latest block")
	}

	return time.Unix(int64(header.Time), 0).UTC(), nil
}
