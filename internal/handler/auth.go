package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/logger"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const userIdKey = "userId"

// AuthMiddleware 校验 HS256 Bearer token, claim "id" 为用户 ID
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))

	return func(c *gin.Context) {
		tokenString := extractBearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			ErrorResponse(c, http.StatusUnauthorized, string(apperr.Unauthorized))
			c.Abort()
			return
		}

		userId, err := parseUserId(tokenString, key)
		if err != nil {
			logger.Debug("Rejected bearer token: %v", err)
			ErrorResponse(c, http.StatusUnauthorized, string(apperr.Unauthorized))
			c.Abort()
			return
		}

		c.Set(userIdKey, userId)
		c.Next()
	}
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func parseUserId(tokenString string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(time.Minute))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	userId, ok := claims["id"].(string)
	if !ok || userId == "" {
		return "", errors.New("token has no id claim")
	}
	return userId, nil
}

// UserId 当前请求的用户 ID, 仅在 AuthMiddleware 之后可用
func UserId(c *gin.Context) string {
	return c.GetString(userIdKey)
}
