package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/models"
)

// Context keys set by the middleware chain.
const (
	CorrelationIDKey = "correlation_id"
	UserIDKey        = "user_id"
	ActorKey         = "actor"
	RoleKey          = "role"

	CorrelationHeader = "X-Correlation-ID"
)

// needed to ensure we have the id for tracking every request for its lifetime
func CorrelationID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		correlationID := ctx.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx.Set(CorrelationIDKey, correlationID)
		ctx.Header(CorrelationHeader, correlationID)
		ctx.Next()
	}
}

// RequestLogger writes one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", c.GetString(CorrelationIDKey)))
	}
}

func unauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.APIResponse{
		Success: false,
		Error:   reason,
		Message: "Unauthorized",
	})
}

// AuthMiddleware accepts "Bearer <jwt>" signed with HMAC secret and exposes
// the user_id, email and role claims on the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authKey := c.GetHeader("Authorization")
		if authKey == "" {
			unauthorized(c, "Authorization header required")
			return
		}
		parts := strings.SplitN(authKey, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			unauthorized(c, "Invalid Api Key")
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Newf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "Invalid Token")
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			userID, _ := claims["user_id"].(string)
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)
			c.Set(UserIDKey, userID)
			c.Set(RoleKey, role)
			actor := email
			if actor == "" {
				actor = userID
			}
			c.Set(ActorKey, actor)
		}
		c.Next()
	}
}

// RequireRole lets the request through only when AuthMiddleware saw role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, models.APIResponse{
				Success: false,
				Error:   "insufficient role",
				Message: "Forbidden",
			})
			return
		}
		c.Next()
	}
}

// RateLimit allows limit requests per client IP in each fixed window. Redis
// errors let the request through.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || window <= 0 {
			c.Next()
			return
		}
		now := time.Now()
		slot := now.UnixNano() / int64(window)
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), slot)

		ctx := c.Request.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			resetIn := time.Duration((slot+1)*int64(window) - now.UnixNano())
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.APIResponse{
				Success: false,
				Error:   "rate limit exceeded",
				Message: "Too Many Requests",
			})
			return
		}
		c.Next()
	}
}
