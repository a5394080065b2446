package riskcontrol

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// RateLimitConfig bounds how fast a single upstream account may be driven.
// Both a request budget and a token budget apply; whichever is tighter wins.
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	TokensPerMinute   int           `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	MinInterval       time.Duration `json:"min_interval" yaml:"min_interval"`
}

// DefaultRateLimitConfig returns the per-account defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		TokensPerMinute:   90000,
		BurstSize:         10,
		MinInterval:       500 * time.Millisecond,
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	d := DefaultRateLimitConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.TokensPerMinute <= 0 {
		c.TokensPerMinute = d.TokensPerMinute
	}
	if c.BurstSize <= 0 {
		c.BurstSize = d.BurstSize
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	return c
}

// tokenBucket refills continuously at refillRate tokens per second, up to
// capacity. Refill happens lazily on access.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(capacity, refillRate float64, now func() time.Time) *tokenBucket {
	if now == nil {
		now = time.Now
	}
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

func (b *tokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// tryAcquire removes n tokens if available.
func (b *tokenBucket) tryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// waitTime reports how long until n tokens will be available.
func (b *tokenBucket) waitTime(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n {
		return 0
	}
	deficit := n - b.tokens
	return time.Duration(deficit / b.refillRate * float64(time.Second))
}

func (b *tokenBucket) available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// slidingWindow counts requests and token usage over a trailing window.
type slidingWindow struct {
	mu      sync.Mutex
	window  time.Duration
	entries []windowEntry
	now     func() time.Time
}

type windowEntry struct {
	at     time.Time
	tokens int
}

func newSlidingWindow(window time.Duration, now func() time.Time) *slidingWindow {
	if now == nil {
		now = time.Now
	}
	return &slidingWindow{window: window, now: now}
}

func (w *slidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}

func (w *slidingWindow) add(tokens int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.pruneLocked(now)
	w.entries = append(w.entries, windowEntry{at: now, tokens: tokens})
}

// counts returns requests and token totals inside the window.
func (w *slidingWindow) counts() (requests, tokens int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	for _, e := range w.entries {
		requests++
		tokens += e.tokens
	}
	return
}

// RateLimiter enforces one account's request and token budgets. Acquire
// blocks until both buckets admit the call and returns the total delay that
// was imposed, including pacing and jitter.
type RateLimiter struct {
	cfg          RateLimitConfig
	requests     *tokenBucket
	tokens       *tokenBucket
	window       *slidingWindow
	mu           sync.Mutex
	lastRequest  time.Time
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
	jitterSource *rand.Rand
}

// NewRateLimiter builds a limiter for the given budgets.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	return &RateLimiter{
		cfg:          cfg,
		requests:     newTokenBucket(float64(cfg.BurstSize), float64(cfg.RequestsPerMinute)/60.0, nil),
		tokens:       newTokenBucket(float64(cfg.TokensPerMinute), float64(cfg.TokensPerMinute)/60.0, nil),
		window:       newSlidingWindow(time.Minute, nil),
		now:          time.Now,
		sleep:        sleepCtx,
		jitterSource: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire blocks until one request carrying estimatedTokens may proceed.
// The returned duration is the total delay imposed on the caller.
func (l *RateLimiter) Acquire(ctx context.Context, estimatedTokens int) (time.Duration, error) {
	start := l.now()

	for !l.requests.tryAcquire(1) {
		wait := l.requests.waitTime(1)
		if err := l.sleep(ctx, wait); err != nil {
			return l.now().Sub(start), err
		}
	}
	for !l.tokens.tryAcquire(float64(estimatedTokens)) {
		wait := l.tokens.waitTime(float64(estimatedTokens))
		if err := l.sleep(ctx, wait); err != nil {
			return l.now().Sub(start), err
		}
	}

	// Pace consecutive requests and add jitter so traffic does not look
	// machine-regular to the upstream.
	l.mu.Lock()
	var pace time.Duration
	if !l.lastRequest.IsZero() {
		since := l.now().Sub(l.lastRequest)
		if since < l.cfg.MinInterval {
			pace = l.cfg.MinInterval - since
		}
	}
	jitter := time.Duration(l.jitterSource.Float64() * float64(500*time.Millisecond))
	l.lastRequest = l.now().Add(pace + jitter)
	l.mu.Unlock()

	if err := l.sleep(ctx, pace+jitter); err != nil {
		return l.now().Sub(start), err
	}

	l.window.add(estimatedTokens)
	return l.now().Sub(start), nil
}

// Usage reports requests and tokens spent in the trailing minute.
func (l *RateLimiter) Usage() (requests, tokens int) {
	return l.window.counts()
}

// Stats summarizes the limiter state for the admin API.
func (l *RateLimiter) Stats() map[string]interface{} {
	reqs, toks := l.window.counts()
	return map[string]interface{}{
		"requests_per_minute": l.cfg.RequestsPerMinute,
		"tokens_per_minute":   l.cfg.TokensPerMinute,
		"window_requests":     reqs,
		"window_tokens":       toks,
		"request_budget":      l.requests.available(),
		"token_budget":        l.tokens.available(),
	}
}

// MultiLevelRateLimiter layers a global limiter over per-account and per-user
// limiters. A request must clear every applicable level; the reported delay is
// the largest any level imposed.
type MultiLevelRateLimiter struct {
	mu       sync.Mutex
	global   *RateLimiter
	accounts map[int64]*RateLimiter
	users    map[int64]*RateLimiter
	accCfg   RateLimitConfig
	userCfg  RateLimitConfig
}

// NewMultiLevelRateLimiter builds the layered limiter. globalCfg may be the
// zero value to disable the global level.
func NewMultiLevelRateLimiter(globalCfg, accountCfg, userCfg RateLimitConfig) *MultiLevelRateLimiter {
	m := &MultiLevelRateLimiter{
		accounts: make(map[int64]*RateLimiter),
		users:    make(map[int64]*RateLimiter),
		accCfg:   accountCfg.withDefaults(),
		userCfg:  userCfg.withDefaults(),
	}
	if globalCfg.RequestsPerMinute > 0 || globalCfg.TokensPerMinute > 0 {
		m.global = NewRateLimiter(globalCfg)
	}
	return m
}

func (m *MultiLevelRateLimiter) accountLimiter(id int64) *RateLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.accounts[id]
	if !ok {
		l = NewRateLimiter(m.accCfg)
		m.accounts[id] = l
		log.WithField("account_id", id).Debug("created account rate limiter")
	}
	return l
}

func (m *MultiLevelRateLimiter) userLimiter(id int64) *RateLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.users[id]
	if !ok {
		l = NewRateLimiter(m.userCfg)
		m.users[id] = l
	}
	return l
}

// Acquire clears the global, account, and user levels in order. accountID or
// userID may be 0 to skip that level.
func (m *MultiLevelRateLimiter) Acquire(ctx context.Context, accountID, userID int64, estimatedTokens int) (time.Duration, error) {
	var maxDelay time.Duration

	if m.global != nil {
		d, err := m.global.Acquire(ctx, estimatedTokens)
		if err != nil {
			return d, err
		}
		if d > maxDelay {
			maxDelay = d
		}
	}
	if accountID != 0 {
		d, err := m.accountLimiter(accountID).Acquire(ctx, estimatedTokens)
		if err != nil {
			return d, err
		}
		if d > maxDelay {
			maxDelay = d
		}
	}
	if userID != 0 {
		d, err := m.userLimiter(userID).Acquire(ctx, estimatedTokens)
		if err != nil {
			return d, err
		}
		if d > maxDelay {
			maxDelay = d
		}
	}
	return maxDelay, nil
}

// AccountStats returns window usage per tracked account.
func (m *MultiLevelRateLimiter) AccountStats() map[int64]map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]map[string]interface{}, len(m.accounts))
	for id, l := range m.accounts {
		out[id] = l.Stats()
	}
	return out
}
