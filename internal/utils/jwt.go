package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("无效的令牌")
	ErrExpiredToken = errors.New("令牌已过期")
)

// MaintenanceClaims 维护接口JWT Claims
type MaintenanceClaims struct {
	Username  string `json:"username"`
	MachineID string `json:"machine_id"`
	jwt.RegisteredClaims
}

// JWTManager 维护接口令牌管理器
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager 创建令牌管理器
func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Generate 签发维护令牌
func (m *JWTManager) Generate(username, machineID string) (string, error) {
	now := time.Now()
	claims := &MaintenanceClaims{
		Username:  username,
		MachineID: machineID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "recycle-kiosk",
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate 校验令牌并返回Claims
func (m *JWTManager) Validate(tokenString string) (*MaintenanceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MaintenanceClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return m.secret, nil
		})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*MaintenanceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
