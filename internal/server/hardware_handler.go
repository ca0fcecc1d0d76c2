package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DispenseRequest 手动出纸请求
type DispenseRequest struct {
	Cycles int `json:"cycles" binding:"required,gt=0,lte=20"`
}

// dispense 维护手动出纸，用于现场调试和卡纸排查
func (r *Router) dispense(c *gin.Context) {
	var req DispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if r.deps.Sequencer.Busy() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "DISPENSER_BUSY",
			Message: "出纸机构正忙",
		})
		return
	}

	if err := r.deps.Sequencer.RunCycles(c.Request.Context(), "maintenance", req.Cycles); err != nil {
		r.logger.Error("手动出纸失败",
			zap.Int("cycles", req.Cycles),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "DISPENSE_FAILED",
			Message: "出纸执行失败",
			Details: err.Error(),
		})
		return
	}

	r.deps.Stock.Consume(int64(req.Cycles))
	r.logger.Info("手动出纸完成",
		zap.Int("cycles", req.Cycles),
		zap.Int64("paper_stock", r.deps.Stock.Current()),
		zap.String("operator", c.GetString("username")))

	c.JSON(http.StatusOK, gin.H{
		"cycles":      req.Cycles,
		"paper_stock": r.deps.Stock.Current(),
	})
}
