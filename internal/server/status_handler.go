package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getStatus 设备状态总览
func (r *Router) getStatus(c *gin.Context) {
	ctx := c.Request.Context()

	pendingCount, err := r.deps.Txns.CountPending(ctx)
	if err != nil {
		r.logger.Warn("待补传数量查询失败", zap.Error(err))
	}

	status := gin.H{
		"machine_id":         r.deps.Machine.ID,
		"state":              r.deps.Orchestrator.State(),
		"online":             r.deps.Monitor.IsOnline(ctx),
		"realtime_connected": r.deps.Realtime != nil && r.deps.Realtime.IsConnected(),
		"paper_stock":        r.deps.Stock.Current(),
		"paper_capacity":     r.deps.Stock.Capacity(),
		"pending_sync":       pendingCount,
	}

	if health, err := r.deps.Controller.GetSensorHealth(); err == nil {
		status["sensor_health"] = health
	} else {
		r.logger.Warn("传感器健康查询失败", zap.Error(err))
	}

	c.JSON(http.StatusOK, status)
}

// RefillRequest 补纸请求
type RefillRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// refillStock 维护补纸
func (r *Router) refillStock(c *gin.Context) {
	var req RefillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	r.deps.Stock.Refill(req.Amount)
	r.logger.Info("维护补纸",
		zap.Int64("amount", req.Amount),
		zap.Int64("current", r.deps.Stock.Current()),
		zap.String("operator", c.GetString("username")))

	c.JSON(http.StatusOK, gin.H{
		"paper_stock":    r.deps.Stock.Current(),
		"paper_capacity": r.deps.Stock.Capacity(),
	})
}
