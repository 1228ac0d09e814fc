package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shepherd/internal/cache"
	"github.com/shepherd/internal/logging"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader 为客户端提供的幂等键请求头。
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader 标记响应来自幂等重放。
	IdempotentReplayHeader = "Idempotent-Replay"

	idempotencyTTL        = 24 * time.Hour
	idempotencyPendingTTL = time.Minute
	maxIdempotencyKeyLen  = 128
)

type idempotentResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(data []byte) (int, error) {
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency 在请求带有 Idempotency-Key 时保存首次响应，重复请求直接重放；
// 首次请求尚未完成时重复请求返回 409。未带该请求头时不做任何处理。
func (a *API) Idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			respondError(c, http.StatusBadRequest, "Idempotency-Key is too long")
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(c, key)

		marker, _ := json.Marshal(idempotentResponse{Pending: true})
		claimed, err := a.cache.SetNX(ctx, cacheKey, marker, idempotencyPendingTTL)
		if err != nil {
			logging.Logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			var stored idempotentResponse
			if err := cache.GetJSON(ctx, a.cache, cacheKey, &stored); err != nil {
				if errors.Is(err, cache.ErrMiss) {
					respondError(c, http.StatusConflict, "Request with this Idempotency-Key is being retried, try again")
				} else {
					respondInternalError(c, err)
				}
				c.Abort()
				return
			}
			if stored.Pending {
				respondError(c, http.StatusConflict, "Request with this Idempotency-Key is still in progress")
				c.Abort()
				return
			}

			c.Header(IdempotentReplayHeader, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		// 处理函数 panic 时由外层 Recovery 接管，这里也要释放占位，否则重试会一直得到 409
		completed := false
		defer func() {
			if !completed {
				a.releaseIdempotencyKey(ctx, cacheKey)
			}
		}()

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()
		completed = true

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			a.releaseIdempotencyKey(ctx, cacheKey)
			return
		}

		if err := cache.SetJSON(ctx, a.cache, cacheKey, idempotentResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}, idempotencyTTL); err != nil {
			logging.Logger.Warn("store idempotent response failed", zap.Error(err))
		}
	}
}

func (a *API) releaseIdempotencyKey(ctx context.Context, cacheKey string) {
	if err := a.cache.Delete(context.WithoutCancel(ctx), cacheKey); err != nil {
		logging.Logger.Warn("release idempotency key failed", zap.Error(err))
	}
}

func idempotencyCacheKey(c *gin.Context, key string) string {
	owner := "ip:" + c.ClientIP()
	if member := currentMember(c); member != nil {
		owner = fmt.Sprintf("member:%d", member.ID)
	}
	return fmt.Sprintf("idempotency:%s:%s:%s:%s", owner, c.Request.Method, c.FullPath(), key)
}
