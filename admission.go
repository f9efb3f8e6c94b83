// Package admission decides whether a caller may run a rate-limited action.
//
// Each action (analyze, rewrite) has its own fixed-window registry keyed by
// caller identity. A request is admitted while the identity has accepted
// fewer than Quota requests in its current window; the window starts with
// the first request and lasts exactly Window.
package admission

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RejectionBody is the JSON written with a 429.
type RejectionBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type MiddlewareConfig struct {
	// IdentityFunc defaults to Identity.
	IdentityFunc   func(r *http.Request) string
	EventPublisher EventPublisher
	Logger         *zap.Logger
}

// AdmissionMiddleware returns a gin middleware that admits requests for
// action through limiter and answers 429 once the caller's quota is spent.
func AdmissionMiddleware(limiter *Limiter, action Action, config MiddlewareConfig) gin.HandlerFunc {
	if config.IdentityFunc == nil {
		config.IdentityFunc = Identity
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	policy, ok := limiter.Policy(action)
	if !ok {
		config.Logger.Warn("no admission policy configured, all requests will pass through",
			zap.String("action", string(action)))
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		identity := config.IdentityFunc(c.Request)

		dec, err := limiter.Check(c.Request.Context(), action, identity)
		if err != nil {
			config.Logger.Error("admission check failed", zap.Error(err))
			c.Next()
			return
		}

		if !dec.Allowed {
			if config.EventPublisher != nil {
				config.EventPublisher.Publish(AdmissionEvent{
					Identity:   identity,
					Action:     action,
					Outcome:    OutcomeRejected,
					RetryAfter: dec.RetryAfterSeconds,
					Path:       c.FullPath(),
					UserAgent:  c.Request.UserAgent(),
					Timestamp:  time.Now().UnixNano(),
				})
			}

			c.Header("Retry-After", strconv.Itoa(dec.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, RejectionBody{
				Success:    false,
				Error:      policy.Message,
				RetryAfter: dec.RetryAfterSeconds,
			})
			return
		}

		c.Next()
	}
}
