package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/recycle-kiosk/internal/repository"
)

func paginationFromQuery(c *gin.Context) *repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return repository.NewPagination(page, pageSize)
}

func limitFromQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// getTransactions 最近投纸交易
func (r *Router) getTransactions(c *gin.Context) {
	pagination := paginationFromQuery(c)
	records, err := r.deps.Txns.GetRecent(c.Request.Context(), pagination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "交易记录查询失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": records,
		"pagination":   pagination,
	})
}

// getRedemptions 最近兑换记录
func (r *Router) getRedemptions(c *gin.Context) {
	pagination := paginationFromQuery(c)
	records, err := r.deps.Redemptions.GetRecent(c.Request.Context(), pagination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "兑换记录查询失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"redemptions": records,
		"pagination":  pagination,
	})
}

// getUsers 本地用户缓存
func (r *Router) getUsers(c *gin.Context) {
	pagination := paginationFromQuery(c)
	users, err := r.deps.Users.GetAll(c.Request.Context(), pagination)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "用户缓存查询失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":      users,
		"pagination": pagination,
	})
}

// getHardwareLogs 硬件通信日志
func (r *Router) getHardwareLogs(c *gin.Context) {
	logs, err := r.deps.HardwareLogs.GetRecent(c.Request.Context(), limitFromQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "硬件日志查询失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// getSyncLogs 补传批次记录
func (r *Router) getSyncLogs(c *gin.Context) {
	logs, err := r.deps.SyncLogs.GetRecent(c.Request.Context(), limitFromQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "同步记录查询失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
