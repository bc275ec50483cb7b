package bridge

import (
	"net/http"
	"strconv"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/park285/cubetimer/internal/auth"
	"github.com/park285/cubetimer/pkg/solvedto"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

const identityKey = "identity"

// RequestLogger logs every request through zap; 2xx/3xx only at debug.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("http_server_error", fields...)
		case status >= 400:
			log.Warn("http_client_error", fields...)
		default:
			log.Debug("http_request", fields...)
		}
	}
}

// AuthRequired resolves the bearer token into an Identity or aborts with 401.
func AuthRequired(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := v.Verify(auth.TokenFromRequest(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, solvedto.ErrorBody{
				Code:    "unauthenticated",
				Message: "a valid access token is required",
			})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

// SecureHeaders sets the frame, sniffing and XSS headers on every response.
func SecureHeaders() gin.HandlerFunc {
	mw := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	return func(c *gin.Context) {
		if err := mw.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit allows limit requests per rate for each owner (client IP when
// unauthenticated).
func RateLimit(rate time.Duration, limit uint) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  rate,
		Limit: limit,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: rateLimited,
		KeyFunc:      rateKey,
	})
}

func rateKey(c *gin.Context) string {
	if id := identityFrom(c); id != nil {
		return "owner:" + id.OwnerID
	}
	return "ip:" + c.ClientIP()
}

func rateLimited(c *gin.Context, info ratelimit.Info) {
	if wait := time.Until(info.ResetTime); wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, solvedto.ErrorBody{
		Code:      "rate_limited",
		Message:   "too many requests",
		Retryable: true,
	})
}
