package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/stream/internal/chain"
	"github.com/blues/stream/internal/config"
	"github.com/blues/stream/internal/database"
	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/logic"
	"github.com/blues/stream/internal/mq"
	"github.com/blues/stream/internal/mutex"
	"github.com/blues/stream/internal/repository"
	"github.com/blues/stream/internal/router"
	"github.com/blues/stream/internal/task"
	"github.com/blues/stream/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {
	// 加载配置
	cfg := config.Load()

	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 分布式锁
	redisClient, err := mutex.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	locker := mutex.NewRedisLocker(redisClient, cfg.Mutex.Wait)

	// 初始化链客户端
	chainManager, err := chain.NewManager(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain manager: %v", err)
	}
	defer chainManager.Close()

	publisher, err := mq.NewPublisher(cfg.MQ)
	if err != nil {
		logger.Fatal("Failed to initialize ledger event publisher: %v", err)
	}
	defer publisher.Close()

	dailySupply, err := strAmount(cfg.Slices.DailySupply)
	if err != nil {
		logger.Fatal("Invalid slices.daily_supply: %v", err)
	}
	promoValue, err := strAmount(cfg.Promo.Value)
	if err != nil {
		logger.Fatal("Invalid promo.value: %v", err)
	}

	txs := repository.NewTxRepository(db)
	txLogic := logic.NewTxLogic(txs, chainManager.Token(), publisher, cfg.Chain.ConfirmTimeout)
	escrowLogic := logic.NewEscrowLogic(logic.EscrowDeps{
		Txs:        txs,
		Users:      repository.NewUserRepository(db),
		Platforms:  repository.NewPlatformRepository(db),
		Promo:      repository.NewPromoRepository(db),
		TxLogic:    txLogic,
		Locker:     locker,
		LockTTL:    cfg.Mutex.TTL,
		PromoValue: promoValue,
	})
	sliceLogic := logic.NewSliceLogic(txs, txLogic, locker, dailySupply, cfg.Slices.PoolSize)
	reconcileLogic := logic.NewReconcileLogic(txs, txLogic, chainManager.Token(), cfg.Reconcile.PendingAge, cfg.Reconcile.AbandonAge)
	vestingLogic := logic.NewVestingLogic(chainManager)

	// 启动定时任务
	tasks, err := task.NewManager(
		task.NewSlicesJob(sliceLogic, cfg.Slices.Hour, cfg.Slices.Minute),
		task.NewReconcileJob(reconcileLogic, cfg.Reconcile.Interval),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := tasks.Start(); err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}
	defer tasks.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Deps{
		Txs:       escrowLogic,
		Vesting:   vestingLogic,
		JWTSecret: cfg.Auth.JWTSecret,
		Health:    chainManager.GetHealthStatus,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}

// strAmount 十进制 STR 金额转换为 twei
func strAmount(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", value, err)
	}
	return token.StrToTwei(d)
}
