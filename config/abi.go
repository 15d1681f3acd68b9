package config

// EscrowFactoryABI is the ABI of the escrow factory. Purchase history events are
// emitted by the factory with the participant and the escrow instance indexed.
const EscrowFactoryABI = `[
	{
		"type": "function",
		"name": "createContract",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "nonpayable"
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "CreatedContract",
		"inputs": [
			{"indexed": false, "internalType": "address", "name": "contractAddress", "type": "address"}
		]
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "BuyerUnresolvedPurchase",
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "buyer", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "purchase", "type": "address"}
		]
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "SellerUnresolvedPurchase",
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "seller", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "purchase", "type": "address"}
		]
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "BuyerCompletedPurchase",
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "buyer", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "purchase", "type": "address"}
		]
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "SellerCompletedPurchase",
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "seller", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "purchase", "type": "address"}
		]
	}
]`

// EscrowCloneABI is the ABI of a single purchase escrow instance.
const EscrowCloneABI = `[
	{"type": "function", "name": "buyer", "inputs": [], "outputs": [{"name": "", "type": "address"}], "stateMutability": "view"},
	{"type": "function", "name": "seller", "inputs": [], "outputs": [{"name": "", "type": "address"}], "stateMutability": "view"},
	{"type": "function", "name": "price", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "collateral", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "tokenAddress", "inputs": [], "outputs": [{"name": "", "type": "address"}], "stateMutability": "view"},
	{"type": "function", "name": "state", "inputs": [], "outputs": [{"name": "", "type": "uint8"}], "stateMutability": "view"},
	{
		"type": "function",
		"name": "createPurchase",
		"inputs": [
			{"name": "seller", "type": "address"},
			{"name": "price", "type": "uint256"},
			{"name": "collateral", "type": "uint256"},
			{"name": "tokenAddress", "type": "address"}
		],
		"outputs": [],
		"stateMutability": "payable"
	},
	{"type": "function", "name": "confirmPurchase", "inputs": [], "outputs": [], "stateMutability": "payable"},
	{"type": "function", "name": "releasePurchase", "inputs": [], "outputs": [], "stateMutability": "nonpayable"},
	{"type": "function", "name": "abortPurchase", "inputs": [], "outputs": [], "stateMutability": "nonpayable"}
]`

// ERC20ABI is the subset of ERC-20 used for decimals lookups and approvals.
const ERC20ABI = `[
	{"type": "function", "name": "decimals", "inputs": [], "outputs": [{"name": "", "type": "uint8"}], "stateMutability": "view"},
	{"type": "function", "name": "symbol", "inputs": [], "outputs": [{"name": "", "type": "string"}], "stateMutability": "view"},
	{
		"type": "function",
		"name": "balanceOf",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "allowance",
		"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "approve",
		"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable"
	}
]`

// SaleABI is the ABI of the token sale contract. The multiplier argument of buy
// is an 18-decimal fixed-point value.
const SaleABI = `[
	{"type": "function", "name": "poolToken", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "poolNative", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{
		"type": "function",
		"name": "contributions",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [
			{"name": "contribution", "type": "uint256"},
			{"name": "weightedContribution", "type": "uint256"},
			{"name": "ethReceived", "type": "uint256"},
			{"name": "tokenWithdrawn", "type": "uint256"}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "buy",
		"inputs": [{"name": "referrer", "type": "address"}, {"name": "multiplier", "type": "uint256"}],
		"outputs": [],
		"stateMutability": "payable"
	},
	{"type": "function", "name": "claimTokens", "inputs": [], "outputs": [], "stateMutability": "nonpayable"}
]`

// RewardPoolABI is the ABI of the staking pool.
const RewardPoolABI = `[
	{
		"type": "function",
		"name": "stakes",
		"inputs": [{"name": "account", "type": "address"}, {"name": "index", "type": "uint256"}],
		"outputs": [
			{"name": "amount", "type": "uint256"},
			{"name": "stakeTime", "type": "uint256"},
			{"name": "startTime", "type": "uint256"}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "newStake",
		"inputs": [{"name": "amount", "type": "uint256"}, {"name": "stakeTime", "type": "uint256"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{"type": "function", "name": "claimRewardsAndWithdrawStake", "inputs": [], "outputs": [], "stateMutability": "nonpayable"},
	{
		"type": "function",
		"name": "claimRewardsAndResetStake",
		"inputs": [{"name": "stakeTime", "type": "uint256"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	}
]`

// RewardTokenABI is the ABI of the vote-bearing reward token. It shares the
// ERC-20 surface for approvals.
const RewardTokenABI = `[
	{"type": "function", "name": "decimals", "inputs": [], "outputs": [{"name": "", "type": "uint8"}], "stateMutability": "view"},
	{
		"type": "function",
		"name": "approve",
		"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "getVotes",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "delegate",
		"inputs": [{"name": "delegatee", "type": "address"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	}
]`

// GovernorABI is the ABI of the protocol governor.
const GovernorABI = `[
	{
		"type": "function",
		"name": "propose",
		"inputs": [
			{"name": "targets", "type": "address[]"},
			{"name": "values", "type": "uint256[]"},
			{"name": "calldatas", "type": "bytes[]"},
			{"name": "description", "type": "string"}
		],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "castVote",
		"inputs": [{"name": "proposalId", "type": "uint256"}, {"name": "support", "type": "uint8"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "nonpayable"
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "ProposalCreated",
		"inputs": [
			{"indexed": false, "name": "proposalId", "type": "uint256"},
			{"indexed": false, "name": "proposer", "type": "address"},
			{"indexed": false, "name": "targets", "type": "address[]"},
			{"indexed": false, "name": "values", "type": "uint256[]"},
			{"indexed": false, "name": "signatures", "type": "string[]"},
			{"indexed": false, "name": "calldatas", "type": "bytes[]"},
			{"indexed": false, "name": "voteStart", "type": "uint256"},
			{"indexed": false, "name": "voteEnd", "type": "uint256"},
			{"indexed": false, "name": "description", "type": "string"}
		]
	}
]`

// TimelockABI is the subset of the timelock controller read by the client.
const TimelockABI = `[
	{"type": "function", "name": "getMinDelay", "inputs": [], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"}
]`
