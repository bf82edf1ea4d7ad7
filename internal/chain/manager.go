package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/stream/internal/config"
	"github.com/blues/stream/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend 链节点接口, *ethclient.Client 满足
type Backend interface {
	bind.ContractBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var supportedTypes = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism"}

// Manager 单链管理器
type Manager struct {
	mu         sync.RWMutex
	backend    Backend
	closer     func()
	config     config.ChainConfig
	token      *TokenContract
	vestingABI abi.ABI
}

// NewManager 连接节点并初始化代币合约
func NewManager(cfg config.ChainConfig) (*Manager, error) {
	client, err := createChainClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	manager, err := NewManagerWithBackend(cfg, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	manager.closer = client.Close
	return manager, nil
}

// NewManagerWithBackend 使用已有的节点连接
func NewManagerWithBackend(cfg config.ChainConfig, backend Backend) (*Manager, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(cfg.ChainId))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	if err := checkHotWallet(cfg.HotWalletAddress, privateKey); err != nil {
		return nil, err
	}

	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
	}
	tokenABIParsed, err := LoadABI(cfg.TokenABIPath, tokenABI)
	if err != nil {
		return nil, fmt.Errorf("failed to load token ABI: %w", err)
	}
	vestingABIParsed, err := LoadABI(cfg.VestingABIPath, vestingABI)
	if err != nil {
		return nil, fmt.Errorf("failed to load vesting ABI: %w", err)
	}

	tokenAddr := common.HexToAddress(cfg.TokenAddress)
	token := NewTokenContract(
		backend,
		NewContract(backend, "STRToken", tokenAddr, tokenABIParsed),
		auth,
		cfg.GasLimit,
		big.NewInt(cfg.GasPrice),
	)
	logger.Info("Initialized token contract %s (hot wallet %s)", tokenAddr.Hex(), auth.From.Hex())

	return &Manager{
		backend:    backend,
		config:     cfg,
		token:      token,
		vestingABI: vestingABIParsed,
	}, nil
}

// checkHotWallet 配置的热钱包地址必须与私钥一致
func checkHotWallet(configured string, key *ecdsa.PrivateKey) error {
	derived := crypto.PubkeyToAddress(key.PublicKey)
	if configured == "" {
		return nil
	}
	if !common.IsHexAddress(configured) || common.HexToAddress(configured) != derived {
		return fmt.Errorf("hot wallet address %s does not match private key address %s", configured, derived.Hex())
	}
	return nil
}

// createChainClient 创建链客户端
func createChainClient(cfg config.ChainConfig) (*ethclient.Client, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	isSupported := false
	for _, supportedType := range supportedTypes {
		if cfg.ChainType == supportedType {
			isSupported = true
			break
		}
	}
	if !isSupported {
		return nil, fmt.Errorf("unsupported chain type %s, supported types: %s", cfg.ChainType, strings.Join(supportedTypes, ", "))
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, cfg.RpcUrl)
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	if err := testClientConnection(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}

	logger.Info("Successfully created %s client", cfg.ChainType)
	return client, nil
}

// testClientConnection 测试客户端连接
func testClientConnection(client Backend) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	return nil
}

// Token 代币合约
func (m *Manager) Token() *TokenContract {
	return m.token
}

// HotWallet 热钱包地址
func (m *Manager) HotWallet() common.Address {
	return m.token.HotWallet()
}

// Vesting 绑定指定地址的锁仓合约
func (m *Manager) Vesting(address common.Address) *VestingContract {
	return &VestingContract{
		Contract: NewContract(m.backend, "LinearDailyVesting", address, m.vestingABI),
		backend:  m.backend,
		token:    m.token,
	}
}

// VestingSnapshot 读取锁仓合约快照
func (m *Manager) VestingSnapshot(ctx context.Context, address common.Address) (*VestingSnapshot, error) {
	return m.Vesting(address).Snapshot(ctx)
}

// GetConfig 获取链配置
func (m *Manager) GetConfig() config.ChainConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := map[string]interface{}{
		"chain_type":    m.config.ChainType,
		"chain_id":      m.config.ChainId,
		"client_status": "connected",
		"token":         m.token.GetAddress().Hex(),
		"hot_wallet":    m.token.HotWallet().Hex(),
	}

	if m.backend == nil {
		health["client_status"] = "not_initialized"
	} else if blockNum, err := m.backend.BlockNumber(ctx); err != nil {
		health["client_status"] = "disconnected"
	} else {
		health["block_num"] = blockNum
	}

	return health
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closer != nil {
		m.closer()
		m.closer = nil
	}

	logger.Info("Chain manager closed")
	return nil
}
