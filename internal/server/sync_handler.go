package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// triggerSync 手动触发离线交易补传
func (r *Router) triggerSync(c *gin.Context) {
	report, err := r.deps.Syncer.SyncPending(c.Request.Context(), "manual")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "SYNC_FAILED",
			Message: "补传执行失败",
			Details: err.Error(),
		})
		return
	}

	r.logger.Info("手动补传完成",
		zap.Bool("online", report.Online),
		zap.Int("synced", report.SyncedCount),
		zap.Int("failed", report.FailedCount),
		zap.String("operator", c.GetString("username")))

	c.JSON(http.StatusOK, report)
}
