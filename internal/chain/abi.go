package chain

// STR 代币实现合约ABI (精简版, 仅包含服务用到的方法与事件)
const tokenABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "tokens", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "success", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "expiration", "type": "uint256"},
			{"name": "nonce", "type": "uint256"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "signedTransfer",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "expiration", "type": "uint256"},
			{"name": "nonce", "type": "uint256"}
		],
		"name": "getSignableTransfer",
		"outputs": [{"name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "signer", "type": "address"},
			{"name": "nonce", "type": "uint256"}
		],
		"name": "isSignedTransferNonceUsed",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "tokens", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

// LinearDailyVesting 合约只读访问器ABI
const vestingABI = `[
	{"constant": true, "inputs": [], "name": "token", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "beneficiary", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "vestingStart", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "vestingDays", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "cliffDays", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "revocable", "outputs": [{"name": "", "type": "bool"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "revoker", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "revokedTokensDestination", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "revokedTokensDestinationChanger", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "revoked", "outputs": [{"name": "", "type": "bool"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "daysSinceVestingStart", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "totalTokens", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "vestedTokens", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "releasableTokens", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "lockedTokens", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "relasedTokens", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"constant": true, "inputs": [], "name": "revokedTokens", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`
