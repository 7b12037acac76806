// internal/middleware/rate_limit.go
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// RatePolicy is the request budget of one class of routes: a bucket of Burst
// tokens refilled one per Every.
type RatePolicy struct {
	Name  string
	Every time.Duration
	Burst int

	// PerUser keys the bucket by the authenticated user instead of the client
	// IP. Anonymous requests still fall back to the IP.
	PerUser bool
}

var (
	GeneralPolicy = RatePolicy{Name: "general", Every: 100 * time.Millisecond, Burst: 20}
	AuthPolicy    = RatePolicy{Name: "auth", Every: 12 * time.Second, Burst: 5}

	// Checkout, confirm and cancel each call the payment processor.
	CheckoutPolicy = RatePolicy{Name: "checkout", Every: 10 * time.Second, Burst: 5, PerUser: true}
	MessagePolicy  = RatePolicy{Name: "messages", Every: time.Second, Burst: 10, PerUser: true}
	UploadPolicy   = RatePolicy{Name: "uploads", Every: 6 * time.Second, Burst: 10, PerUser: true}

	// Address autocomplete fires per keystroke.
	PlacesPolicy = RatePolicy{Name: "places", Every: 200 * time.Millisecond, Burst: 10}
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds the token buckets of every policy, keyed by policy name
// and caller. Buckets idle longer than idleTTL are swept.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	idleTTL  time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(idleTTL time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		idleTTL: idleTTL,
		done:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(rl.idleTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.sweep(now)
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idleTTL {
			delete(rl.buckets, key)
		}
	}
}

// Stop ends the sweeping goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Allow takes a token from the caller's bucket for policy p.
func (rl *RateLimiter) Allow(p RatePolicy, caller string) bool {
	key := p.Name + "|" + caller

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(p.Every), p.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow()
}

// Limit enforces policy p on a route or group.
func (rl *RateLimiter) Limit(p RatePolicy) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(p.Every.Seconds())))

	return func(c *gin.Context) {
		if !rl.Allow(p, callerKey(c, p.PerUser)) {
			c.Header("Retry-After", retryAfter)
			utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED",
				i18n.T(utils.GetLangFromContext(c), i18n.KeyRateLimited), nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context, perUser bool) string {
	if perUser {
		if userID, ok := utils.GetUserIDFromContext(c); ok && userID != "" {
			return "user:" + userID
		}
	}
	return "ip:" + c.ClientIP()
}

var limiter = NewRateLimiter(3 * time.Minute)

// StopRateLimiter stops the shared limiter's sweeper on shutdown.
func StopRateLimiter() {
	limiter.Stop()
}

func GeneralRateLimit() gin.HandlerFunc {
	return limiter.Limit(GeneralPolicy)
}

func AuthRateLimit() gin.HandlerFunc {
	return limiter.Limit(AuthPolicy)
}

// CheckoutRateLimit must run after AuthRequired to key by user.
func CheckoutRateLimit() gin.HandlerFunc {
	return limiter.Limit(CheckoutPolicy)
}

func MessageRateLimit() gin.HandlerFunc {
	return limiter.Limit(MessagePolicy)
}

func UploadRateLimit() gin.HandlerFunc {
	return limiter.Limit(UploadPolicy)
}

func PlacesRateLimit() gin.HandlerFunc {
	return limiter.Limit(PlacesPolicy)
}
