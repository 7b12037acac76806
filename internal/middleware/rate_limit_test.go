package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

var testPolicy = RatePolicy{Name: "test", Every: time.Hour, Burst: 2}

func limitedEngine(rl *RateLimiter, p RatePolicy) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set("user_id", user)
		}
	}, rl.Limit(p), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r *gin.Engine, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	r := limitedEngine(rl, testPolicy)

	assert.Equal(t, http.StatusOK, hit(r, "").Code)
	assert.Equal(t, http.StatusOK, hit(r, "").Code)

	w := hit(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestPerUserPolicyKeysByUser(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	p := testPolicy
	p.PerUser = true
	r := limitedEngine(rl, p)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "shopper-a").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "shopper-a").Code)

	// Same IP, different user: separate bucket.
	assert.Equal(t, http.StatusOK, hit(r, "shopper-b").Code)
}

func TestPoliciesHaveSeparateBuckets(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()

	other := testPolicy
	other.Name = "other"

	assert.True(t, rl.Allow(testPolicy, "ip:1.2.3.4"))
	assert.True(t, rl.Allow(testPolicy, "ip:1.2.3.4"))
	assert.False(t, rl.Allow(testPolicy, "ip:1.2.3.4"))
	assert.True(t, rl.Allow(other, "ip:1.2.3.4"))
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()

	rl.Allow(testPolicy, "ip:1.2.3.4")
	rl.Allow(CheckoutPolicy, "user:42")

	rl.sweep(time.Now())
	assert.Len(t, rl.buckets, 2)

	rl.sweep(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.buckets)

	rl.Stop()
	rl.Stop()
}
