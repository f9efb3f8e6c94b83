package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lightnote/admission"
)

// Enforcement accuracy check against a live HTTP listener.
// Run with: go run ./loadtest/enforcement

type result struct {
	Name            string
	Total           int
	Allowed         int
	Denied          int
	ExpectedAllowed int
	ExpectedDenied  int
}

func (r result) accuracy() float64 {
	expected := r.ExpectedAllowed + r.ExpectedDenied
	diff := abs(r.Allowed-r.ExpectedAllowed) + abs(r.Denied-r.ExpectedDenied)
	acc := float64(expected-diff) / float64(expected) * 100
	if acc < 0 {
		return 0
	}
	return acc
}

func main() {
	gin.SetMode(gin.ReleaseMode)

	results := []result{
		sequentialBurst(),
		concurrentBurst(),
		perIdentity(),
		windowRollover(),
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Fixed-window enforcement")
	t.AppendHeader(table.Row{"Test", "Total", "Allowed", "Denied", "Accuracy", "Status"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Name, r.Total,
			fmt.Sprintf("%d (%d)", r.Allowed, r.ExpectedAllowed),
			fmt.Sprintf("%d (%d)", r.Denied, r.ExpectedDenied),
			fmt.Sprintf("%.1f%%", r.accuracy()),
			status(r.accuracy()),
		})
	}
	t.Render()
}

func newServer(quota int, window time.Duration) *httptest.Server {
	limiter := admission.NewLimiter(map[admission.Action]admission.Policy{
		admission.ActionAnalyze: {Quota: quota, Window: window, Message: "slow down"},
	})
	router := gin.New()
	router.GET("/test",
		admission.AdmissionMiddleware(limiter, admission.ActionAnalyze, admission.MiddlewareConfig{}),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return httptest.NewServer(router)
}

type counter struct {
	mu      sync.Mutex
	allowed int
	denied  int
}

func (c *counter) hit(client *http.Client, url, identity string) {
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if identity != "" {
		req.Header.Set("X-Forwarded-For", identity)
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch resp.StatusCode {
	case http.StatusOK:
		c.allowed++
	case http.StatusTooManyRequests:
		c.denied++
	}
}

// 150 sequential requests against a quota of 100.
func sequentialBurst() result {
	srv := newServer(100, time.Minute)
	defer srv.Close()

	var c counter
	client := srv.Client()
	for i := 0; i < 150; i++ {
		c.hit(client, srv.URL+"/test", "10.0.0.1")
	}
	return result{Name: "sequential burst", Total: 150, Allowed: c.allowed, Denied: c.denied, ExpectedAllowed: 100, ExpectedDenied: 50}
}

// 500 requests from 50 goroutines against a quota of 50.
func concurrentBurst() result {
	srv := newServer(50, time.Minute)
	defer srv.Close()

	var (
		c  counter
		wg sync.WaitGroup
	)
	client := srv.Client()
	for w := 0; w < 50; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				c.hit(client, srv.URL+"/test", "10.0.0.2")
			}
		}()
	}
	wg.Wait()
	return result{Name: "concurrent burst", Total: 500, Allowed: c.allowed, Denied: c.denied, ExpectedAllowed: 50, ExpectedDenied: 450}
}

// 20 identities, 15 requests each, quota 10.
func perIdentity() result {
	srv := newServer(10, time.Minute)
	defer srv.Close()

	var (
		c  counter
		wg sync.WaitGroup
	)
	client := srv.Client()
	for id := 0; id < 20; id++ {
		wg.Add(1)
		go func(identity string) {
			defer wg.Done()
			for i := 0; i < 15; i++ {
				c.hit(client, srv.URL+"/test", identity)
			}
		}(fmt.Sprintf("10.1.0.%d", id))
	}
	wg.Wait()
	return result{Name: "per identity", Total: 300, Allowed: c.allowed, Denied: c.denied, ExpectedAllowed: 200, ExpectedDenied: 100}
}

// Two bursts of 10 separated by more than the window, quota 5.
func windowRollover() result {
	window := 500 * time.Millisecond
	srv := newServer(5, window)
	defer srv.Close()

	var c counter
	client := srv.Client()
	for burst := 0; burst < 2; burst++ {
		for i := 0; i < 10; i++ {
			c.hit(client, srv.URL+"/test", "10.0.0.3")
		}
		time.Sleep(window + 100*time.Millisecond)
	}
	return result{Name: "window rollover", Total: 20, Allowed: c.allowed, Denied: c.denied, ExpectedAllowed: 10, ExpectedDenied: 10}
}

func status(acc float64) string {
	switch {
	case acc >= 95:
		return "PASS"
	case acc >= 85:
		return "MARGINAL"
	default:
		return "FAIL"
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
