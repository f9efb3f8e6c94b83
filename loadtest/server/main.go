package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lightnote/admission"
)

// Test server for measuring middleware overhead.
// Run with: go run ./loadtest/server
func main() {
	gin.SetMode(gin.ReleaseMode)

	// Quotas high enough that nothing is rejected.
	limiter := admission.NewLimiter(map[admission.Action]admission.Policy{
		admission.ActionAnalyze: {Quota: 1_000_000_000, Window: time.Hour, Message: "unreachable"},
	})

	router := gin.New()
	router.GET("/baseline", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	router.GET("/with-middleware",
		admission.AdmissionMiddleware(limiter, admission.ActionAnalyze, admission.MiddlewareConfig{}),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		})

	log.Println("Load test server starting on :8080")
	log.Println("Endpoints:")
	log.Println("  /baseline          - No middleware (baseline)")
	log.Println("  /with-middleware   - With admission middleware")
	log.Println("")
	log.Println("Run load tests with:")
	log.Println("  hey -n 100000 -c 100 http://localhost:8080/baseline")
	log.Println("  hey -n 100000 -c 100 http://localhost:8080/with-middleware")

	if err := router.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
