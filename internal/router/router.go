package router

import (
	"context"
	"net/http"

	"github.com/blues/stream/internal/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 路由依赖
type Deps struct {
	Txs       handler.TxService
	Vesting   handler.VestingAuditor
	JWTSecret string
	// Health 可选, 返回链连接等组件状态
	Health func(ctx context.Context) map[string]interface{}
}

func Setup(deps Deps) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "stream-service",
		}
		if deps.Health != nil {
			body["chain"] = deps.Health(c.Request.Context())
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API版本组
	v1 := r.Group("/api/v1")
	v1.Use(handler.AuthMiddleware(deps.JWTSecret))
	{
		txHandler := handler.NewTxHandler(deps.Txs)
		txs := v1.Group("/txs")
		{
			txs.GET("", txHandler.GetTxs)
			txs.POST("/send", txHandler.Send)
			txs.POST("/claimEscrow/all", txHandler.ClaimEscrowAll)
			txs.POST("/claimEscrow/:txHash", txHandler.ClaimEscrow)
			txs.GET("/txHash/:txHash", txHandler.GetTx)
			txs.GET("/promo", txHandler.GetPromo)
			txs.POST("/promo", txHandler.RedeemPromo)
		}

		vestingHandler := handler.NewVestingHandler(deps.Vesting)
		v1.GET("/vesting/:address", vestingHandler.GetVesting)
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
