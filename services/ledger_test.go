package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/logging"
)

const (
	sepoliaChainID = 11155111
	baseChainID    = 8453
	genesisTime    = 1_700_000_000
	blockInterval  = 12

	testChunkSize   = 4
	testConcurrency = 3
)

var (
	buyerAccount  = common.HexToAddress("0x00000000000000000000000000000000000b0b01")
	sellerAccount = common.HexToAddress("0x000000000000000000000000000000000005e11e")
	otherAccount  = common.HexToAddress("0x0000000000000000000000000000000000000123")

	factoryAddress     = common.HexToAddress("0x00000000000000000000000000000000fac70001")
	usdcAddress        = common.HexToAddress("0x0000000000000000000000000000000000050dc6")
	brokenTokenAddress = common.HexToAddress("0x00000000000000000000000000000000000bad20")
	saleAddress        = common.HexToAddress("0x000000000000000000000000000000000000541e")
	rewardTokenAddress = common.HexToAddress("0x0000000000000000000000000000000000007e70")
	poolAddress        = common.HexToAddress("0x0000000000000000000000000000000000000b00")
	governorAddress    = common.HexToAddress("0x0000000000000000000000000000000000060f00")
	timelockAddress    = common.HexToAddress("0x00000000000000000000000000000000000071c0")

	errReverted = errors.New("execution reverted")
)

type fakeEscrow struct {
	buyer      common.Address
	seller     common.Address
	price      *big.Int
	collateral *big.Int
	token      common.Address
	state      uint8
}

type fakeToken struct {
	decimals     uint8
	failDecimals bool
	allowances   map[[2]common.Address]*big.Int
}

type fakeStake struct {
	amount    *big.Int
	stakeTime *big.Int
	startTime *big.Int
}

type sentTx struct {
	From   common.Address
	To     common.Address
	Method string
	Value  *big.Int
}

// fakeLedger is an in-memory chain running the escrow, sale, staking and
// governance contracts. Every transaction mines a block.
type fakeLedger struct {
	t       *testing.T
	chainID uint64

	mu        sync.Mutex
	block     uint64
	times     map[uint64]uint64
	nonce     uint64
	escrows   map[common.Address]*fakeEscrow
	tokens    map[common.Address]*fakeToken
	logs      []types.Log
	receipts  map[common.Hash]*types.Receipt
	sent      []sentTx
	failSend  map[string]error
	failRange func(from, to uint64) error
	dropTx    map[common.Hash]bool
	filters   int

	// filterDelay holds each FilterLogs call so overlapping calls can be counted
	filterDelay time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	poolToken     *big.Int
	poolNative    *big.Int
	contributions map[common.Address][4]*big.Int
	stakes        map[common.Address][]fakeStake
	votes         map[common.Address]*big.Int
	minDelay      *big.Int
	nextProposal  *big.Int
	votesCast     map[string]uint8

	factoryABI abi.ABI
	cloneABI   abi.ABI
	erc20ABI   abi.ABI
	saleABI    abi.ABI
	poolABI    abi.ABI
	rewardABI  abi.ABI
	govABI     abi.ABI
	timeABI    abi.ABI
}

var _ evm.Backend = (*fakeLedger)(nil)

func newFakeLedger(t *testing.T, chainID uint64) *fakeLedger {
	mustABI := func(raw string) abi.ABI {
		parsed, err := parseABI(raw)
		require.NoError(t, err)
		return parsed
	}

	return &fakeLedger{
		t:       t,
		chainID: chainID,
		block:   1,
		times:   map[uint64]uint64{1: genesisTime},
		escrows: make(map[common.Address]*fakeEscrow),
		tokens: map[common.Address]*fakeToken{
			usdcAddress:        {decimals: 6, allowances: make(map[[2]common.Address]*big.Int)},
			brokenTokenAddress: {failDecimals: true, allowances: make(map[[2]common.Address]*big.Int)},
			rewardTokenAddress: {decimals: 18, allowances: make(map[[2]common.Address]*big.Int)},
		},
		receipts:      make(map[common.Hash]*types.Receipt),
		failSend:      make(map[string]error),
		dropTx:        make(map[common.Hash]bool),
		poolToken:     new(big.Int),
		poolNative:    new(big.Int),
		contributions: make(map[common.Address][4]*big.Int),
		stakes:        make(map[common.Address][]fakeStake),
		votes:         make(map[common.Address]*big.Int),
		minDelay:      big.NewInt(172_800),
		nextProposal:  big.NewInt(4242),
		votesCast:     make(map[string]uint8),

		factoryABI: mustABI(config.EscrowFactoryABI),
		cloneABI:   mustABI(config.EscrowCloneABI),
		erc20ABI:   mustABI(config.ERC20ABI),
		saleABI:    mustABI(config.SaleABI),
		poolABI:    mustABI(config.RewardPoolABI),
		rewardABI:  mustABI(config.RewardTokenABI),
		govABI:     mustABI(config.GovernorABI),
		timeABI:    mustABI(config.TimelockABI),
	}
}

func (l *fakeLedger) now() uint64 {
	return l.times[l.block]
}

func (l *fakeLedger) mine() {
	l.block++
	l.times[l.block] = l.times[l.block-1] + blockInterval
}

// advance mines empty blocks until at least seconds have passed.
func (l *fakeLedger) advance(seconds uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := l.now() + seconds
	for l.now() < target {
		l.mine()
	}
}

func (l *fakeLedger) sentTxs() []sentTx {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]sentTx(nil), l.sent...)
}

func (l *fakeLedger) escrow(addr common.Address) fakeEscrow {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.escrows[addr]
	require.True(l.t, ok, "no escrow at %s", addr.Hex())

	return *e
}

func (l *fakeLedger) abiAt(addr common.Address) (abi.ABI, bool) {
	if _, ok := l.escrows[addr]; ok {
		return l.cloneABI, true
	}

	switch addr {
	case factoryAddress:
		return l.factoryABI, true
	case usdcAddress, brokenTokenAddress:
		return l.erc20ABI, true
	case saleAddress:
		return l.saleABI, true
	case poolAddress:
		return l.poolABI, true
	case rewardTokenAddress:
		return l.rewardABI, true
	case governorAddress:
		return l.govABI, true
	case timelockAddress:
		return l.timeABI, true
	}

	return abi.ABI{}, false
}

func (l *fakeLedger) decode(to common.Address, data []byte) (*abi.Method, []interface{}, error) {
	parsed, ok := l.abiAt(to)
	if !ok || len(data) < 4 {
		return nil, nil, errReverted
	}

	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, errReverted
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}

	return method, args, nil
}

func (l *fakeLedger) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(l.chainID), nil
}

func (l *fakeLedger) BlockNumber(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.block, nil
}

func (l *fakeLedger) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.block
	if number != nil {
		n = number.Uint64()
	}

	ts, ok := l.times[n]
	if !ok {
		return nil, ethereum.NotFound
	}

	return &types.Header{Number: new(big.Int).SetUint64(n), Time: ts}, nil
}

func (l *fakeLedger) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.abiAt(account); ok {
		return []byte{0x60, 0x80}, nil
	}

	return nil, nil
}

func (l *fakeLedger) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if call.To == nil {
		return nil, errReverted
	}

	method, args, err := l.decode(*call.To, call.Data)
	if err != nil {
		return nil, err
	}

	out, err := l.read(*call.To, method.Name, args)
	if err != nil {
		return nil, err
	}

	return method.Outputs.Pack(out...)
}

func (l *fakeLedger) read(to common.Address, method string, args []interface{}) ([]interface{}, error) {
	if e, ok := l.escrows[to]; ok {
		switch method {
		case "buyer":
			return []interface{}{e.buyer}, nil
		case "seller":
			return []interface{}{e.seller}, nil
		case "price":
			return []interface{}{orZero(e.price)}, nil
		case "collateral":
			return []interface{}{orZero(e.collateral)}, nil
		case "tokenAddress":
			return []interface{}{e.token}, nil
		case "state":
			return []interface{}{e.state}, nil
		}
	}

	if token, ok := l.tokens[to]; ok {
		switch method {
		case "decimals":
			if token.failDecimals {
				return nil, errReverted
			}
			return []interface{}{token.decimals}, nil
		case "getVotes":
			return []interface{}{orZero(l.votes[args[0].(common.Address)])}, nil
		case "allowance":
			key := [2]common.Address{args[0].(common.Address), args[1].(common.Address)}
			return []interface{}{orZero(token.allowances[key])}, nil
		}
	}

	switch {
	case to == saleAddress && method == "poolToken":
		return []interface{}{l.poolToken}, nil
	case to == saleAddress && method == "poolNative":
		return []interface{}{l.poolNative}, nil
	case to == saleAddress && method == "contributions":
		c := l.contributions[args[0].(common.Address)]
		return []interface{}{orZero(c[0]), orZero(c[1]), orZero(c[2]), orZero(c[3])}, nil
	case to == poolAddress && method == "stakes":
		stakes := l.stakes[args[0].(common.Address)]
		idx := args[1].(*big.Int)
		if !idx.IsInt64() || idx.Int64() >= int64(len(stakes)) {
			return nil, errReverted
		}
		s := stakes[idx.Int64()]
		return []interface{}{s.amount, s.stakeTime, s.startTime}, nil
	case to == timelockAddress && method == "getMinDelay":
		return []interface{}{l.minDelay}, nil
	}

	return nil, errReverted
}

func (l *fakeLedger) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	for {
		peak := l.maxInFlight.Load()
		if n <= peak || l.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if l.filterDelay > 0 {
		time.Sleep(l.filterDelay)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters++

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	if l.failRange != nil {
		if err := l.failRange(from, to); err != nil {
			return nil, err
		}
	}

	var out []types.Log
	for _, log := range l.logs {
		if log.BlockNumber < from || log.BlockNumber > to || !matchAddress(q.Addresses, log.Address) {
			continue
		}

		if matchTopics(q.Topics, log.Topics) {
			out = append(out, log)
		}
	}

	return out, nil
}

func matchAddress(addrs []common.Address, addr common.Address) bool {
	if len(addrs) == 0 {
		return true
	}

	for _, a := range addrs {
		if a == addr {
			return true
		}
	}

	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}

		if i >= len(topics) {
			return false
		}

		found := false
		for _, want := range alternatives {
			if topics[i] == want {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func (l *fakeLedger) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dropTx[hash] {
		return nil, ethereum.NotFound
	}

	receipt, ok := l.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}

	return receipt, nil
}

// send executes a transaction and mines it. A failing contract rule reverts:
// the receipt is returned with status 0 together with an error.
func (l *fakeLedger) send(from, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	method, args, err := l.decode(to, data)
	if err != nil {
		return nil, err
	}

	l.sent = append(l.sent, sentTx{From: from, To: to, Method: method.Name, Value: orZero(value)})

	if err := l.failSend[method.Name]; err != nil {
		return nil, err
	}

	l.nonce++
	hash := crypto.Keccak256Hash(new(big.Int).SetUint64(l.nonce).Bytes(), from.Bytes(), to.Bytes())

	l.mine()

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(l.block),
		GasUsed:     50_000,
	}

	logs, applyErr := l.apply(from, to, orZero(value), method.Name, args)
	if applyErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		l.receipts[hash] = receipt
		return receipt, fmt.Errorf("transaction %s reverted: %w", hash.Hex(), applyErr)
	}

	for i, log := range logs {
		log.TxHash = hash
		log.BlockNumber = l.block
		log.Index = uint(i)
		l.logs = append(l.logs, *log)
	}

	receipt.Logs = logs
	l.receipts[hash] = receipt

	return receipt, nil
}

func (l *fakeLedger) apply(from, to common.Address, value *big.Int, method string, args []interface{}) ([]*types.Log, error) {
	if e, ok := l.escrows[to]; ok {
		return l.applyEscrow(from, to, e, value, method, args)
	}

	if token, ok := l.tokens[to]; ok {
		switch method {
		case "approve":
			key := [2]common.Address{from, args[0].(common.Address)}
			token.allowances[key] = args[1].(*big.Int)
			return nil, nil
		case "delegate":
			l.votes[args[0].(common.Address)] = new(big.Int).Mul(big.NewInt(250), big.NewInt(1e18))
			return nil, nil
		}
	}

	switch {
	case to == factoryAddress && method == "createContract":
		addr := crypto.CreateAddress(factoryAddress, l.nonce)
		l.escrows[addr] = &fakeEscrow{}

		data, err := l.factoryABI.Events["CreatedContract"].Inputs.NonIndexed().Pack(addr)
		if err != nil {
			return nil, err
		}

		return []*types.Log{{
			Address: factoryAddress,
			Topics:  []common.Hash{l.factoryABI.Events["CreatedContract"].ID},
			Data:    data,
		}}, nil

	case to == saleAddress && method == "buy":
		if value.Sign() == 0 {
			return nil, errReverted
		}
		c := l.contributions[from]
		c[0] = new(big.Int).Add(orZero(c[0]), value)
		c[1] = new(big.Int).Add(orZero(c[1]), new(big.Int).Div(new(big.Int).Mul(value, args[1].(*big.Int)), big.NewInt(1e18)))
		c[2], c[3] = orZero(c[2]), orZero(c[3])
		l.contributions[from] = c
		l.poolNative.Add(l.poolNative, value)
		return nil, nil

	case to == saleAddress && method == "claimTokens":
		return nil, nil

	case to == poolAddress && method == "newStake":
		amount := args[0].(*big.Int)
		if !l.consumeAllowance(rewardTokenAddress, from, poolAddress, amount) {
			return nil, errReverted
		}
		l.stakes[from] = append(l.stakes[from], fakeStake{
			amount:    amount,
			stakeTime: args[1].(*big.Int),
			startTime: new(big.Int).SetUint64(l.now()),
		})
		return nil, nil

	case to == poolAddress && (method == "claimRewardsAndWithdrawStake" || method == "claimRewardsAndResetStake"):
		return nil, nil

	case to == governorAddress && method == "propose":
		return l.applyPropose(from, args)

	case to == governorAddress && method == "castVote":
		l.votesCast[args[0].(*big.Int).String()] = args[1].(uint8)
		return nil, nil
	}

	return nil, errReverted
}

func (l *fakeLedger) applyEscrow(from, to common.Address, e *fakeEscrow, value *big.Int, method string, args []interface{}) ([]*types.Log, error) {
	switch method {
	case "createPurchase":
		if e.state != 0 || e.buyer != (common.Address{}) {
			return nil, errReverted
		}

		price, collateral := args[1].(*big.Int), args[2].(*big.Int)
		token := args[3].(common.Address)
		total := new(big.Int).Add(price, collateral)

		if token == (common.Address{}) {
			if value.Cmp(total) != 0 {
				return nil, errReverted
			}
		} else if !l.consumeAllowance(token, from, to, total) {
			return nil, errReverted
		}

		*e = fakeEscrow{
			buyer:      from,
			seller:     args[0].(common.Address),
			price:      price,
			collateral: collateral,
			token:      token,
			state:      1,
		}

		return []*types.Log{
			l.factoryEvent("BuyerUnresolvedPurchase", e.buyer, to),
			l.factoryEvent("SellerUnresolvedPurchase", e.seller, to),
		}, nil

	case "confirmPurchase":
		if from != e.seller || e.state != 1 {
			return nil, errReverted
		}

		if e.token == (common.Address{}) {
			if value.Cmp(e.collateral) != 0 {
				return nil, errReverted
			}
		} else if !l.consumeAllowance(e.token, from, to, e.collateral) {
			return nil, errReverted
		}

		e.state = 2
		return nil, nil

	case "releasePurchase":
		if from != e.buyer || e.state != 2 {
			return nil, errReverted
		}

		e.state = 0

		return []*types.Log{
			l.factoryEvent("BuyerCompletedPurchase", e.buyer, to),
			l.factoryEvent("SellerCompletedPurchase", e.seller, to),
		}, nil

	case "abortPurchase":
		if from != e.buyer || e.state != 1 {
			return nil, errReverted
		}

		e.state = 3
		return nil, nil
	}

	return nil, errReverted
}

func (l *fakeLedger) applyPropose(from common.Address, args []interface{}) ([]*types.Log, error) {
	targets := args[0].([]common.Address)
	values := args[1].([]*big.Int)
	calldatas := args[2].([][]byte)
	description := args[3].(string)

	id := new(big.Int).Set(l.nextProposal)
	l.nextProposal.Add(l.nextProposal, big.NewInt(1))

	event := l.govABI.Events["ProposalCreated"]
	data, err := event.Inputs.NonIndexed().Pack(
		id, from, targets, values, make([]string, len(targets)), calldatas,
		new(big.Int).SetUint64(l.block+1), new(big.Int).SetUint64(l.block+50_400), description,
	)
	if err != nil {
		return nil, err
	}

	return []*types.Log{{Address: governorAddress, Topics: []common.Hash{event.ID}, Data: data}}, nil
}

func (l *fakeLedger) factoryEvent(name string, participant, purchase common.Address) *types.Log {
	return &types.Log{
		Address: factoryAddress,
		Topics: []common.Hash{
			l.factoryABI.Events[name].ID,
			common.BytesToHash(participant.Bytes()),
			common.BytesToHash(purchase.Bytes()),
		},
	}
}

func (l *fakeLedger) consumeAllowance(token, owner, spender common.Address, amount *big.Int) bool {
	t, ok := l.tokens[token]
	if !ok {
		return false
	}

	key := [2]common.Address{owner, spender}
	if orZero(t.allowances[key]).Cmp(amount) < 0 {
		return false
	}

	t.allowances[key] = new(big.Int).Sub(t.allowances[key], amount)

	return true
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// fakeSigner sends transactions to the fake ledger as the wallet's current account.
type fakeSigner struct {
	ledger  *fakeLedger
	account common.Address
}

func (s *fakeSigner) Address() common.Address { return s.account }

func (s *fakeSigner) Send(_ context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	return s.ledger.send(s.account, to, value, data)
}

// fakeWallet is a Wallet over the fake ledger whose account can be switched.
type fakeWallet struct {
	ledger *fakeLedger

	mu         sync.Mutex
	account    common.Address
	connectErr error
}

func (w *fakeWallet) Connect(context.Context) (evm.Backend, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.connectErr != nil {
		return nil, w.connectErr
	}

	return w.ledger, nil
}

func (w *fakeWallet) Signer(uint64) (evm.Signer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &fakeSigner{ledger: w.ledger, account: w.account}, nil
}

func (w *fakeWallet) use(account common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.account = account
}

func (w *fakeWallet) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.connectErr = errors.New("user rejected the request")
}

type testEnv struct {
	ledger     *fakeLedger
	wallet     *fakeWallet
	registry   *config.Registry
	cache      *ReadCache
	metrics    *MetricsService
	resolver   *WalletChainContextResolver
	escrow     *EscrowService
	sale       *SaleService
	staking    *StakingService
	governance *GovernanceService
	history    *HistoryService
}

func newTestEnv(t *testing.T, chainID uint64) *testEnv {
	ledger := newFakeLedger(t, chainID)
	wallet := &fakeWallet{ledger: ledger, account: buyerAccount}
	logger := logging.NewTesting(t)

	env := map[string]string{
		fmt.Sprintf("%s_%d", config.EnvFactoryAddress, chainID):  factoryAddress.Hex(),
		fmt.Sprintf("%s_%d", config.EnvDeploymentBlock, chainID): "1",
		config.EnvSaleAddress:        saleAddress.Hex(),
		config.EnvRewardTokenAddress: rewardTokenAddress.Hex(),
		config.EnvRewardPoolAddress:  poolAddress.Hex(),
		config.EnvGovernorAddress:    governorAddress.Hex(),
		config.EnvTimelockAddress:    timelockAddress.Hex(),
	}
	registry := config.NewRegistry(func(key string) string { return env[key] })

	metrics := NewMetricsService(logger)
	cache := NewReadCache(64, config.DefaultReadCacheTTL, metrics)
	clients := NewSimpleClientResolver(map[uint64]evm.Backend{chainID: ledger})
	resolver := NewWalletChainContextResolver(wallet, clients, chainID, cache, logger)

	return &testEnv{
		ledger:     ledger,
		wallet:     wallet,
		registry:   registry,
		cache:      cache,
		metrics:    metrics,
		resolver:   resolver,
		escrow:     NewEscrowService(resolver, registry, metrics, logger),
		sale:       NewSaleService(resolver, registry, cache, metrics, logger),
		staking:    NewStakingService(resolver, registry, metrics, logger),
		governance: NewGovernanceService(resolver, registry, cache, metrics, logger),
		history:    NewHistoryService(resolver, registry, testChunkSize, testConcurrency, metrics, logger),
	}
}

// createNative creates a funded native purchase from the buyer to the seller.
func (e *testEnv) createNative(t *testing.T, price, collateral string) common.Address {
	t.Helper()

	res := e.escrow.Create(context.Background(), sellerAccount.Hex(), price, collateral, "")
	require.True(t, res.Success, res.Error)

	return common.HexToAddress(res.PurchaseID)
}
