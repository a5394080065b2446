package riskcontrol

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// AccountStatus classifies how usable an upstream account currently is.
type AccountStatus string

const (
	StatusHealthy   AccountStatus = "healthy"
	StatusDegraded  AccountStatus = "degraded"
	StatusUnhealthy AccountStatus = "unhealthy"
	StatusBanned    AccountStatus = "banned"
)

// RiskLevel grades how likely an account is to draw upstream enforcement.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// FailureKind distinguishes failure classes that trip different thresholds.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureRateLimit
	FailureAuth
)

const (
	authErrorBanThreshold     = 3
	rateLimitDegradeThreshold = 5
	consecutiveFailUnhealthy  = 10
	banDuration               = 24 * time.Hour
	degradeDuration           = time.Hour
	recentFailureWindow       = time.Hour
)

// HealthMetrics accumulates per-account outcome counters.
type HealthMetrics struct {
	TotalRequests         int64
	FailedRequests        int64
	ConsecutiveFailures   int
	ConsecutiveRateLimits int
	AuthErrors            int
	LastSuccessAt         time.Time
	LastFailureAt         time.Time
}

// AccountHealth is one account's tracked state.
type AccountHealth struct {
	AccountID      int64
	Status         AccountStatus
	Risk           RiskLevel
	Metrics        HealthMetrics
	Enabled        bool
	StatusUntil    time.Time // when a degraded/banned state expires
	recentFailures []time.Time
	recentRequests []time.Time
}

// PriorityPenalty scales an account's scheduling weight by health.
func (h *AccountHealth) PriorityPenalty() float64 {
	switch h.Status {
	case StatusBanned:
		return 0.0
	case StatusUnhealthy:
		return 0.1
	case StatusDegraded:
		return 0.5
	default:
		return 1.0
	}
}

// Available reports whether the scheduler may hand traffic to this account.
func (h *AccountHealth) Available() bool {
	if !h.Enabled {
		return false
	}
	return h.Status == StatusHealthy || h.Status == StatusDegraded
}

// HealthMonitor tracks account health and applies cool-offs for auth errors,
// rate-limit storms, and sustained failures.
type HealthMonitor struct {
	mu       sync.Mutex
	accounts map[int64]*AccountHealth
	now      func() time.Time
}

// NewHealthMonitor constructs an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		accounts: make(map[int64]*AccountHealth),
		now:      time.Now,
	}
}

func (m *HealthMonitor) getLocked(accountID int64) *AccountHealth {
	h, ok := m.accounts[accountID]
	if !ok {
		h = &AccountHealth{
			AccountID: accountID,
			Status:    StatusHealthy,
			Risk:      RiskLow,
			Enabled:   true,
		}
		m.accounts[accountID] = h
	}
	return h
}

// RecordSuccess notes a successful call for the account.
func (m *HealthMonitor) RecordSuccess(accountID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.getLocked(accountID)
	now := m.now()
	h.Metrics.TotalRequests++
	h.Metrics.ConsecutiveFailures = 0
	h.Metrics.ConsecutiveRateLimits = 0
	h.Metrics.LastSuccessAt = now
	h.recentRequests = append(h.recentRequests, now)
	m.evaluateLocked(h, now)
}

// RecordFailure notes a failed call. Auth failures and rate limits escalate
// faster than generic errors.
func (m *HealthMonitor) RecordFailure(accountID int64, kind FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.getLocked(accountID)
	now := m.now()
	h.Metrics.TotalRequests++
	h.Metrics.FailedRequests++
	h.Metrics.ConsecutiveFailures++
	h.Metrics.LastFailureAt = now
	h.recentRequests = append(h.recentRequests, now)
	h.recentFailures = append(h.recentFailures, now)

	switch kind {
	case FailureAuth:
		h.Metrics.AuthErrors++
		h.Metrics.ConsecutiveRateLimits = 0
	case FailureRateLimit:
		h.Metrics.ConsecutiveRateLimits++
	default:
		h.Metrics.ConsecutiveRateLimits = 0
	}

	m.evaluateLocked(h, now)
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

func (m *HealthMonitor) evaluateLocked(h *AccountHealth, now time.Time) {
	cutoff := now.Add(-recentFailureWindow)
	h.recentFailures = pruneTimes(h.recentFailures, cutoff)
	h.recentRequests = pruneTimes(h.recentRequests, cutoff)

	// A timed cool-off is sticky until it expires: successes inside the
	// window must not dilute the grade back to healthy. Only the periodic
	// CheckAndRecover sweep lifts it.
	if now.Before(h.StatusUntil) {
		if h.Status == StatusBanned {
			h.Risk = RiskCritical
		} else {
			h.Status = StatusDegraded
			h.Risk = RiskHigh
		}
		return
	}

	prev := h.Status

	switch {
	case h.Metrics.AuthErrors >= authErrorBanThreshold:
		h.Status = StatusBanned
		h.Risk = RiskCritical
		h.StatusUntil = now.Add(banDuration)
	case h.Metrics.ConsecutiveRateLimits >= rateLimitDegradeThreshold:
		h.Status = StatusDegraded
		h.Risk = RiskCritical
		h.StatusUntil = now.Add(degradeDuration)
	case h.Metrics.ConsecutiveFailures >= consecutiveFailUnhealthy:
		h.Status = StatusUnhealthy
		h.Risk = RiskHigh
	default:
		rate := 0.0
		if n := len(h.recentRequests); n > 0 {
			rate = float64(len(h.recentFailures)) / float64(n)
		}
		switch {
		case rate > 0.5:
			h.Status = StatusDegraded
			h.Risk = RiskHigh
		case rate > 0.3:
			h.Status = StatusDegraded
			h.Risk = RiskMedium
		case rate > 0.1:
			h.Status = StatusHealthy
			h.Risk = RiskMedium
		default:
			h.Status = StatusHealthy
			h.Risk = RiskLow
		}
		h.StatusUntil = time.Time{}
	}

	if h.Status != prev {
		log.WithFields(log.Fields{
			"account_id": h.AccountID,
			"from":       prev,
			"to":         h.Status,
			"risk":       h.Risk,
		}).Warn("account health status changed")
	}
}

// Get returns a copy of one account's health, if tracked.
func (m *HealthMonitor) Get(accountID int64) (AccountHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.accounts[accountID]
	if !ok {
		return AccountHealth{}, false
	}
	return *h, true
}

// Penalty returns the scheduling penalty for an account; unknown accounts are
// treated as fully healthy.
func (m *HealthMonitor) Penalty(accountID int64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.accounts[accountID]
	if !ok {
		return 1.0
	}
	return h.PriorityPenalty()
}

// Available reports whether an account may receive traffic.
func (m *HealthMonitor) Available(accountID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.accounts[accountID]
	if !ok {
		return true
	}
	return h.Available()
}

// SetEnabled toggles an account on or off administratively.
func (m *HealthMonitor) SetEnabled(accountID int64, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getLocked(accountID).Enabled = enabled
}

// CheckAndRecover resets expired cool-offs. Banned and degraded states lift
// once their window passes; the recovered account restarts healthy with
// cleared escalation counters. Returns the recovered account IDs.
func (m *HealthMonitor) CheckAndRecover() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var recovered []int64
	for id, h := range m.accounts {
		if h.StatusUntil.IsZero() || now.Before(h.StatusUntil) {
			continue
		}
		if h.Status == StatusBanned || h.Status == StatusDegraded {
			h.Status = StatusHealthy
			h.Risk = RiskMedium
			h.StatusUntil = time.Time{}
			h.Metrics.AuthErrors = 0
			h.Metrics.ConsecutiveRateLimits = 0
			h.Metrics.ConsecutiveFailures = 0
			recovered = append(recovered, id)
			log.WithField("account_id", id).Info("account health cool-off expired, restored")
		}
	}
	return recovered
}

// AvailableAccounts filters candidates to usable accounts, ordered from the
// least penalized down.
func (m *HealthMonitor) AvailableAccounts(candidates []int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	type scored struct {
		id      int64
		penalty float64
	}
	var out []scored
	for _, id := range candidates {
		h, ok := m.accounts[id]
		if ok && !h.Available() {
			continue
		}
		p := 1.0
		if ok {
			p = h.PriorityPenalty()
		}
		out = append(out, scored{id: id, penalty: p})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].penalty > out[j].penalty })
	ids := make([]int64, len(out))
	for i, s := range out {
		ids[i] = s.id
	}
	return ids
}

// Summary counts tracked accounts per status for the admin API.
func (m *HealthMonitor) Summary() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[AccountStatus]int{}
	for _, h := range m.accounts {
		counts[h.Status]++
	}
	return map[string]interface{}{
		"total":     len(m.accounts),
		"healthy":   counts[StatusHealthy],
		"degraded":  counts[StatusDegraded],
		"unhealthy": counts[StatusUnhealthy],
		"banned":    counts[StatusBanned],
	}
}
