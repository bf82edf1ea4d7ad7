package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Mutex     MutexConfig     `mapstructure:"mutex"`
	Slices    SlicesConfig    `mapstructure:"slices"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Promo     PromoConfig     `mapstructure:"promo"`
	Auth      AuthConfig      `mapstructure:"auth"`
	MQ        MQConfig        `mapstructure:"mq"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password_file"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
}

// RedisConfig 分布式锁所用的 redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType        string        `mapstructure:"chain_type"`         // 链类型 (ethereum, polygon, etc.)
	ChainId          int64         `mapstructure:"chain_id"`           // 链ID
	RpcUrl           string        `mapstructure:"rpc_url"`            // RPC节点URL
	PrivateKey       string        `mapstructure:"private_key"`        // 热钱包私钥
	PrivateKeyFile   string        `mapstructure:"private_key_file"`   // 私钥文件路径, 优先于 private_key
	HotWalletAddress string        `mapstructure:"hot_wallet_address"` // 热钱包地址(托管哨兵地址)
	TokenAddress     string        `mapstructure:"token_address"`      // STR 代币合约地址
	TokenABIPath     string        `mapstructure:"token_abi_path"`     // 可选, 为空时使用内置 ABI
	VestingABIPath   string        `mapstructure:"vesting_abi_path"`   // 可选, 为空时使用内置 ABI
	GasLimit         uint64        `mapstructure:"gas_limit"`
	GasPrice         int64         `mapstructure:"gas_price"` // wei, 0 表示由节点建议
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
}

// MutexConfig 分布式锁配置
type MutexConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Wait time.Duration `mapstructure:"wait"` // 获取锁的最长等待时间
}

// SlicesConfig 每日奖励分发配置
type SlicesConfig struct {
	Hour        uint   `mapstructure:"hour"`
	Minute      uint   `mapstructure:"minute"`
	DailySupply string `mapstructure:"daily_supply"` // STR, 十进制字符串
	PoolSize    int    `mapstructure:"pool_size"`
}

// ReconcileConfig PENDING 记录对账配置
type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	PendingAge time.Duration `mapstructure:"pending_age"`
	AbandonAge time.Duration `mapstructure:"abandon_age"`
}

type PromoConfig struct {
	Value string `mapstructure:"value"` // STR
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MQConfig 账本事件推送配置
type MQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "stream")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.gas_limit", 200000)
	v.SetDefault("chain.confirm_timeout", 2*time.Minute)
	v.SetDefault("mutex.ttl", 20*time.Second)
	v.SetDefault("mutex.wait", 2*time.Second)
	v.SetDefault("slices.hour", 0)
	v.SetDefault("slices.minute", 0)
	v.SetDefault("slices.daily_supply", "100000")
	v.SetDefault("slices.pool_size", 16)
	v.SetDefault("reconcile.interval", 5*time.Minute)
	v.SetDefault("reconcile.pending_age", 10*time.Minute)
	v.SetDefault("reconcile.abandon_age", 24*time.Hour)
	v.SetDefault("promo.value", "500")
	v.SetDefault("mq.enabled", false)
	v.SetDefault("mq.exchange", "stream.txs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

func Load() *Config {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/stream")

	SetDefaults(v)

	// 自动读取环境变量, chain.rpc_url -> CHAIN_RPC_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	cfg, err := Decode(v)
	if err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}
	return cfg
}

// Decode 解码配置并解析文件形式的密钥
func Decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := resolveSecret(&config.Database.Password, config.Database.PasswordFile); err != nil {
		return nil, fmt.Errorf("database.password_file: %w", err)
	}
	if err := resolveSecret(&config.Chain.PrivateKey, config.Chain.PrivateKeyFile); err != nil {
		return nil, fmt.Errorf("chain.private_key_file: %w", err)
	}
	return &config, nil
}

func resolveSecret(dst *string, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	*dst = strings.TrimRight(string(data), "\r\n ")
	return nil
}
