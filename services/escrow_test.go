package services

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowhq/escrow/models"
)

func TestEscrowService_CreateNative(t *testing.T) {
	env := newTestEnv(t, sepoliaChainID)
	ctx := context.Background()

	res := env.escrow.Create(ctx, sellerAccount.Hex(), "1.0", "0.5", "")
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.TxHash)
	assert.Empty(t, res.Error)
	require.True(t, common.IsHexAddress(res.PurchaseID))

	sent := env.ledger.sentTxs()
	require.Len(t, sent, 2)
	assert.Equal(t, "createContract", sent[0].Method)
	assert.Equal(t, factoryAddress, sent[0].To)
	assert.Equal(t, "createPurchase", sent[1].Method)
	assert.Equal(t, common.HexToAddress(res.PurchaseID), sent[1].To)

	// price plus collateral attached as value
	wantValue, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, wantValue.Cmp(sent[1].Value))

	record, err := env.escrow.GetDetails(ctx, res.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, "1.0", record.Price)
	assert.Equal(t, "0.5", record.Collateral)
	assert.Equal(t, models.NativeTokenAddress, record.TokenAddress)
	assert.Equal(t, models.PurchaseStatusCreated, record.Status)
	assert.Equal(t, buyerAccount.Hex(), record.Buyer)
	assert.Equal(t, sellerAccount.Hex(), record.Seller)
	assert.Equal(t, common.HexToAddress(res.PurchaseID).Hex(), record.ID)
}

func TestEscrowService_CreateERC20(t *testing.T) {
	t.Run("approves total before createPurchase", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		ctx := context.Background()

		res := env.escrow.Create(ctx, sellerAccount.Hex(), "100", "25.5", usdcAddress.Hex())
		require.True(t, res.Success, res.Error)

		sent := env.ledger.sentTxs()
		require.Len(t, sent, 3)
		assert.Equal(t, []string{"createContract", "approve", "createPurchase"},
			[]string{sent[0].Method, sent[1].Method, sent[2].Method})
		assert.Equal(t, usdcAddress, sent[1].To)
		assert.Zero(t, sent[2].Value.Sign())

		purchase := env.ledger.escrow(common.HexToAddress(res.PurchaseID))
		assert.Equal(t, big.NewInt(100_000_000), purchase.price)
		assert.Equal(t, big.NewInt(25_500_000), purchase.collateral)
		assert.Equal(t, usdcAddress, purchase.token)

		record, err := env.escrow.GetDetails(ctx, res.PurchaseID)
		require.NoError(t, err)
		assert.Equal(t, "100.0", record.Price)
		assert.Equal(t, "25.5", record.Collateral)
		assert.Equal(t, usdcAddress.Hex(), record.TokenAddress)
	})

	t.Run("decimals failure assumes 18", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)

		res := env.escrow.Create(context.Background(), sellerAccount.Hex(), "2", "1", brokenTokenAddress.Hex())
		require.True(t, res.Success, res.Error)

		purchase := env.ledger.escrow(common.HexToAddress(res.PurchaseID))
		want, _ := new(big.Int).SetString("2000000000000000000", 10)
		assert.Equal(t, 0, want.Cmp(purchase.price))
	})

	t.Run("excess token decimals rejected before any transaction", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)

		res := env.escrow.Create(context.Background(), sellerAccount.Hex(), "1.0000001", "0", usdcAddress.Hex())
		assert.False(t, res.Success)
		assert.Equal(t, models.KindInvalidInput, res.Kind)
		assert.Empty(t, env.ledger.sentTxs())
	})
}

func TestEscrowService_CreateValidation(t *testing.T) {
	tests := []struct {
		name       string
		seller     string
		price      string
		collateral string
		token      string
		kind       models.ErrorKind
	}{
		{name: "invalid seller", seller: "0x123", price: "1", collateral: "1", kind: models.KindInvalidInput},
		{name: "invalid price", seller: sellerAccount.Hex(), price: "abc", collateral: "1", kind: models.KindInvalidInput},
		{name: "negative collateral", seller: sellerAccount.Hex(), price: "1", collateral: "-1", kind: models.KindInvalidInput},
		{name: "invalid token", seller: sellerAccount.Hex(), price: "1", collateral: "1", token: "usdc", kind: models.KindInvalidInput},
		{name: "price beyond uint256", seller: sellerAccount.Hex(), price: "1" + strings.Repeat("0", 80), collateral: "0", kind: models.KindInvalidInput},
		{name: "total beyond uint256", seller: sellerAccount.Hex(), price: "1" + strings.Repeat("0", 59), collateral: "1" + strings.Repeat("0", 59), kind: models.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, sepoliaChainID)

			res := env.escrow.Create(context.Background(), tt.seller, tt.price, tt.collateral, tt.token)
			assert.False(t, res.Success)
			assert.Empty(t, res.TxHash)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Empty(t, env.ledger.sentTxs())
		})
	}
}

func TestEscrowService_CreatePartialFailure(t *testing.T) {
	env := newTestEnv(t, sepoliaChainID)
	env.ledger.failSend["createPurchase"] = errors.New("user rejected transaction")

	res := env.escrow.Create(context.Background(), sellerAccount.Hex(), "1", "1", "")
	assert.False(t, res.Success)
	assert.Empty(t, res.TxHash)
	assert.Equal(t, models.KindPartialFailure, res.Kind)
	assert.Contains(t, res.Error, "Partial Failure")
	assert.Contains(t, res.Error, "createContract (0x")
	assert.Contains(t, res.Error, "was created but not funded")
	assert.Contains(t, res.Error, "user rejected transaction")
}

func TestEscrowService_CreateUnknownAddress(t *testing.T) {
	env := newTestEnv(t, sepoliaChainID)
	env.escrow.WithRecoveryStrategies(func(abi.ABI, common.Address) []AddressRecoveryStrategy {
		return nil
	})

	res := env.escrow.Create(context.Background(), sellerAccount.Hex(), "1", "1", "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "could not determine purchase contract address")

	// nothing after the factory call was attempted
	require.Len(t, env.ledger.sentTxs(), 1)
}

func TestEscrowService_Confirm(t *testing.T) {
	t.Run("native attaches collateral", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")

		env.wallet.use(sellerAccount)
		res := env.escrow.Confirm(context.Background(), purchase.Hex())
		require.True(t, res.Success, res.Error)
		assert.Equal(t, purchase.Hex(), res.PurchaseID)

		sent := env.ledger.sentTxs()
		last := sent[len(sent)-1]
		assert.Equal(t, "confirmPurchase", last.Method)
		assert.Equal(t, sellerAccount, last.From)
		assert.Equal(t, "500000000000000000", last.Value.String())
		assert.Equal(t, uint8(2), env.ledger.escrow(purchase).state)
	})

	t.Run("erc20 approves collateral first", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		created := env.escrow.Create(context.Background(), sellerAccount.Hex(), "10", "3", usdcAddress.Hex())
		require.True(t, created.Success, created.Error)

		env.wallet.use(sellerAccount)
		res := env.escrow.Confirm(context.Background(), created.PurchaseID)
		require.True(t, res.Success, res.Error)

		sent := env.ledger.sentTxs()
		require.Len(t, sent, 5)
		assert.Equal(t, "approve", sent[3].Method)
		assert.Equal(t, usdcAddress, sent[3].To)
		assert.Equal(t, "confirmPurchase", sent[4].Method)
		assert.Zero(t, sent[4].Value.Sign())
	})

	t.Run("caller is not the seller", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")
		before := len(env.ledger.sentTxs())

		env.wallet.use(otherAccount)
		res := env.escrow.Confirm(context.Background(), purchase.Hex())
		assert.False(t, res.Success)
		assert.Empty(t, res.TxHash)
		assert.Contains(t, res.Error, "Unauthorized")
		assert.Len(t, env.ledger.sentTxs(), before)
	})

	t.Run("seller given in upper case", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		res := env.escrow.Create(context.Background(), "0x000000000000000000000000000000000005E11E", "1", "1", "")
		require.True(t, res.Success, res.Error)

		env.wallet.use(sellerAccount)
		confirmed := env.escrow.Confirm(context.Background(), res.PurchaseID)
		assert.True(t, confirmed.Success, confirmed.Error)
	})
}

func TestEscrowService_Release(t *testing.T) {
	t.Run("requires confirmed state", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")
		before := len(env.ledger.sentTxs())

		res := env.escrow.Release(context.Background(), purchase.Hex())
		assert.False(t, res.Success)
		assert.Empty(t, res.TxHash)
		assert.Contains(t, res.Error, "Invalid State")
		assert.Contains(t, res.Error, "purchase "+purchase.Hex()+" is created")
		assert.Len(t, env.ledger.sentTxs(), before)
	})

	t.Run("buyer releases after confirmation", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")

		env.wallet.use(sellerAccount)
		require.True(t, env.escrow.Confirm(context.Background(), purchase.Hex()).Success)

		env.wallet.use(sellerAccount)
		res := env.escrow.Release(context.Background(), purchase.Hex())
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "Unauthorized")

		env.wallet.use(buyerAccount)
		res = env.escrow.Release(context.Background(), purchase.Hex())
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "releasePurchase", env.ledger.sentTxs()[3].Method)
	})
}

func TestEscrowService_Abort(t *testing.T) {
	t.Run("buyer aborts before confirmation", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")

		res := env.escrow.Abort(context.Background(), purchase.Hex())
		require.True(t, res.Success, res.Error)
		assert.Equal(t, uint8(models.StateFailed), env.ledger.escrow(purchase).state)
	})

	t.Run("seller may not abort", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")

		env.wallet.use(sellerAccount)
		res := env.escrow.Abort(context.Background(), purchase.Hex())
		assert.Equal(t, models.KindUnauthorized, res.Kind)
	})

	t.Run("not after confirmation", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")

		env.wallet.use(sellerAccount)
		require.True(t, env.escrow.Confirm(context.Background(), purchase.Hex()).Success)
		before := len(env.ledger.sentTxs())

		env.wallet.use(buyerAccount)
		res := env.escrow.Abort(context.Background(), purchase.Hex())
		assert.Equal(t, models.KindInvalidState, res.Kind)
		assert.Len(t, env.ledger.sentTxs(), before)
	})
}

func TestEscrowService_TransitionErrors(t *testing.T) {
	t.Run("no contract at address", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)

		res := env.escrow.Confirm(context.Background(), otherAccount.Hex())
		assert.Equal(t, models.KindNotFound, res.Kind)

		_, err := env.escrow.GetDetails(context.Background(), otherAccount.Hex())
		assert.True(t, models.IsKind(err, models.KindNotFound))
	})

	t.Run("wallet not connected", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		purchase := env.createNative(t, "1", "0.5")
		before := len(env.ledger.sentTxs())

		env.wallet.disconnect()
		res := env.escrow.Release(context.Background(), purchase.Hex())
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "wallet not connected")
		assert.Len(t, env.ledger.sentTxs(), before)

		// reads still work through the public endpoint
		record, err := env.escrow.GetDetails(context.Background(), purchase.Hex())
		require.NoError(t, err)
		assert.Equal(t, models.PurchaseStatusCreated, record.Status)
	})

	t.Run("ledger revert passes the provider message through", func(t *testing.T) {
		env := newTestEnv(t, sepoliaChainID)
		env.ledger.failSend["createContract"] = errors.New("insufficient funds for gas")

		res := env.escrow.Create(context.Background(), sellerAccount.Hex(), "1", "1", "")
		assert.Equal(t, models.KindLedger, res.Kind)
		assert.Contains(t, res.Error, "insufficient funds for gas")
	})
}

func TestEscrowService_UnsupportedNetwork(t *testing.T) {
	env := newTestEnv(t, 999)

	res := env.escrow.Create(context.Background(), sellerAccount.Hex(), "1", "1", "")
	assert.False(t, res.Success)
	assert.Equal(t, models.KindUnsupportedNetwork, res.Kind)
	assert.Contains(t, res.Error, "chain 999")

	_, err := env.escrow.GetDetails(context.Background(), otherAccount.Hex())
	assert.True(t, models.IsKind(err, models.KindUnsupportedNetwork))
	assert.Empty(t, env.ledger.sentTxs())
}

func TestEscrowService_GetDetailsIdempotent(t *testing.T) {
	env := newTestEnv(t, sepoliaChainID)
	purchase := env.createNative(t, "3", "1")

	first, err := env.escrow.GetDetails(context.Background(), purchase.Hex())
	require.NoError(t, err)

	env.ledger.advance(30)

	second, err := env.escrow.GetDetails(context.Background(), purchase.Hex())
	require.NoError(t, err)

	assert.False(t, second.Timestamp.Before(first.Timestamp))

	second.Timestamp = first.Timestamp
	assert.Equal(t, first, second)
}

func TestRecoverPurchaseAddress(t *testing.T) {
	ledger := newFakeLedger(t, sepoliaChainID)
	instance := common.HexToAddress("0x00000000000000000000000000000000000c10e1")
	strategies := DefaultRecoveryStrategies(ledger.factoryABI, factoryAddress)

	created := ledger.factoryABI.Events["CreatedContract"]
	data, err := created.Inputs.NonIndexed().Pack(instance)
	require.NoError(t, err)

	t.Run("created event", func(t *testing.T) {
		logs := []*types.Log{
			{Address: factoryAddress, Topics: []common.Hash{common.HexToHash("0x01")}},
			{Address: factoryAddress, Topics: []common.Hash{created.ID}, Data: data},
		}

		addr, strategy, err := RecoverPurchaseAddress(logs, strategies)
		require.NoError(t, err)
		assert.Equal(t, instance, addr)
		assert.Equal(t, "event_argument", strategy)
	})

	t.Run("indexed argument", func(t *testing.T) {
		buyerEvent := ledger.factoryABI.Events["BuyerUnresolvedPurchase"]
		logs := []*types.Log{{
			Address: factoryAddress,
			Topics:  []common.Hash{buyerEvent.ID, common.BytesToHash(instance.Bytes())},
		}}

		addr, ok := EventArgumentStrategy{ABI: ledger.factoryABI, Events: []string{"BuyerUnresolvedPurchase"}}.Recover(logs)
		assert.True(t, ok)
		assert.Equal(t, instance, addr)
	})

	t.Run("foreign emitter", func(t *testing.T) {
		logs := []*types.Log{
			{Address: factoryAddress, Topics: []common.Hash{common.HexToHash("0x02")}},
			{Address: instance, Topics: []common.Hash{common.HexToHash("0x03")}},
		}

		addr, strategy, err := RecoverPurchaseAddress(logs, strategies)
		require.NoError(t, err)
		assert.Equal(t, instance, addr)
		assert.Equal(t, "foreign_emitter", strategy)
	})

	t.Run("nothing recoverable", func(t *testing.T) {
		logs := []*types.Log{{Address: factoryAddress, Topics: []common.Hash{common.HexToHash("0x04")}}}

		_, _, err := RecoverPurchaseAddress(logs, strategies)
		assert.ErrorIs(t, err, ErrPurchaseAddressUnknown)
		assert.Contains(t, err.Error(), "could not determine purchase contract address")
	})
}
