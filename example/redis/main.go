package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/lightnote/admission"
)

// Admission shared by every instance pointed at the same Redis.
// Make sure Redis is running: docker run -d -p 6379:6379 redis:latest
func main() {
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	log.Println("Successfully connected to Redis!")

	policies := map[admission.Action]admission.Policy{
		admission.ActionAnalyze: {
			Quota:   3,
			Window:  30 * time.Second,
			Message: "Too many analysis requests. Please wait a moment.",
		},
		admission.ActionRewrite: admission.DefaultPolicies()[admission.ActionRewrite],
	}
	limiter := admission.NewLimiter(policies, admission.WithRedis(redisClient, "example:admission"))

	router := gin.Default()
	router.POST("/analyze",
		admission.AdmissionMiddleware(limiter, admission.ActionAnalyze, admission.MiddlewareConfig{}),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "admitted by Redis"})
		})

	log.Println("Server starting on :8080")
	log.Println("Try: curl -XPOST http://localhost:8080/analyze")
	if err := router.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
