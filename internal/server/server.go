package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// Server 本地维护API服务器
//
// 只在设备本机（或运维内网）监听，供现场维护人员查询设备
// 状态、翻阅交易与兑换记录、手动触发补传。
type Server struct {
	cfg    config.ServerConfig
	router *Router
	http   *http.Server
	logger *zap.Logger
}

// New 创建维护服务器
func New(cfg config.ServerConfig, router *Router) *Server {
	return &Server{
		cfg:    cfg,
		router: router,
		logger: logger.GetModuleLogger("server"),
	}
}

// Start 启动HTTP监听，阻塞直到服务器关闭
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router.Engine(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("维护API服务器启动", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("维护API服务器关闭中")
	return s.http.Shutdown(ctx)
}
