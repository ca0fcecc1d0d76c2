package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/kiosk"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/middleware"
	"github.com/wfunc/recycle-kiosk/internal/repository"
	"github.com/wfunc/recycle-kiosk/internal/syncer"
	"github.com/wfunc/recycle-kiosk/internal/utils"
)

// StateReader 交易状态查询接口
type StateReader interface {
	State() kiosk.State
}

// SyncTrigger 手动补传接口
type SyncTrigger interface {
	SyncPending(ctx context.Context, trigger string) (*syncer.Report, error)
}

// ConnChecker 实时通道连接状态接口，可为nil
type ConnChecker interface {
	IsConnected() bool
}

// Dispenser 出纸执行接口
type Dispenser interface {
	Busy() bool
	RunCycles(ctx context.Context, source string, cycles int) error
}

// Deps 路由依赖
type Deps struct {
	Machine      config.MachineConfig
	Security     config.SecurityConfig
	Controller   hardware.Controller
	Orchestrator StateReader
	Monitor      *backend.Monitor
	Realtime     ConnChecker
	Stock        *kiosk.Stock
	Sequencer    Dispenser
	Syncer       SyncTrigger
	Txns         repository.PendingTransactionRepository
	Redemptions  repository.RedemptionRepository
	Users        repository.CachedUserRepository
	HardwareLogs repository.HardwareLogRepository
	SyncLogs     repository.SyncLogRepository
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Router 维护API路由器
type Router struct {
	engine      *gin.Engine
	deps        *Deps
	jwtManager  *utils.JWTManager
	authHandler *AuthHandler
	logger      *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(mode string, deps *Deps) *Router {
	gin.SetMode(mode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	expiry := time.Duration(deps.Security.JWT.ExpireHours) * time.Hour
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	jwtManager := utils.NewJWTManager(deps.Security.JWT.Secret, expiry)

	r := &Router{
		engine:      engine,
		deps:        deps,
		jwtManager:  jwtManager,
		authHandler: NewAuthHandler(deps.Security.Maintenance, deps.Machine.ID, jwtManager),
		logger:      logger.GetModuleLogger("server"),
	}
	r.setupRoutes()
	return r
}

// Engine 获取Gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	authMiddleware := middleware.NewAuthMiddleware(r.jwtManager)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/auth/login", r.authHandler.Login)

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.GET("/status", r.getStatus)
			protected.GET("/transactions", r.getTransactions)
			protected.GET("/redemptions", r.getRedemptions)
			protected.GET("/users", r.getUsers)
			protected.GET("/hardware/logs", r.getHardwareLogs)
			protected.GET("/sync/logs", r.getSyncLogs)
			protected.POST("/sync", r.triggerSync)
			protected.POST("/stock/refill", r.refillStock)
			protected.POST("/hardware/dispense", r.dispense)
		}
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"machine_id": r.deps.Machine.ID,
		"time":       time.Now().Format(time.RFC3339),
	})
}
