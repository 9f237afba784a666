package middleware

import (
	"discord-rag-backend/config"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

// principalKey 认证主体在gin context中的键
// 限流计数与限流状态查询都以它标识主体
const principalKey = "email"

type Claims struct {
	Email string
	jwt.RegisteredClaims
}

func GenerateToken(email string) (string, error) {
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	secretKey := []byte(config.Cfg.JWT.SecretKey)
	return token.SignedString(secretKey)
}

// Principal 返回认证通过的主体标识，未认证时为空串
func Principal(c *gin.Context) string {
	return c.GetString(principalKey)
}

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			slog.Info("Missing or malformed authorization header")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(config.Cfg.JWT.SecretKey), nil
		})
		if err != nil || !token.Valid {
			slog.Info("Invalid token", "err", err, "user_email", claims.Email)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(principalKey, claims.Email)
		c.Next()
	}
}

func bearerToken(authHeader string) (string, bool) {
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
