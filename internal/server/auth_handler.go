package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/utils"
)

// AuthHandler 维护登录处理器
type AuthHandler struct {
	account    config.MaintenanceConfig
	machineID  string
	jwtManager *utils.JWTManager
}

// NewAuthHandler 创建登录处理器
func NewAuthHandler(account config.MaintenanceConfig, machineID string, jwtManager *utils.JWTManager) *AuthHandler {
	return &AuthHandler{
		account:    account,
		machineID:  machineID,
		jwtManager: jwtManager,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string `json:"token"`
	MachineID string `json:"machine_id"`
}

// Login 维护账户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	// 未配置口令哈希时维护接口不可登录
	if h.account.PasswordHash == "" {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    "LOGIN_DISABLED",
			Message: "维护账户未配置",
		})
		return
	}

	if req.Username != h.account.Username {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "用户名或密码错误",
		})
		return
	}

	ok, err := utils.VerifyPassword(req.Password, h.account.PasswordHash)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "用户名或密码错误",
		})
		return
	}

	token, err := h.jwtManager.Generate(req.Username, h.machineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "TOKEN_FAILED",
			Message: "令牌签发失败",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		MachineID: h.machineID,
	})
}
