package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lightnote/admission"
)

// Per-process admission with the default policies.
// Try: for i in $(seq 12); do curl -s -XPOST -H 'X-Forwarded-For: 1.2.3.4' localhost:8080/analyze; echo; done
func main() {
	limiter := admission.NewLimiter(admission.DefaultPolicies())
	limiter.StartJanitor(context.Background(), time.Minute, 5*time.Minute)

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %d %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))
	router.Use(gin.Recovery())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.POST("/analyze",
		admission.AdmissionMiddleware(limiter, admission.ActionAnalyze, admission.MiddlewareConfig{}),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "analysis": "looks good"})
		})

	router.POST("/rewrite",
		admission.AdmissionMiddleware(limiter, admission.ActionRewrite, admission.MiddlewareConfig{}),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "rewritten": "even better"})
		})

	if err := router.Run(); err != nil {
		log.Fatal(err)
	}
}
