package usage

import (
	"sync"
	"time"
)

// Record is one relay outcome fed into the live tracker.
type Record struct {
	Timestamp time.Time  `json:"timestamp"`
	ChannelID int64      `json:"channel_id"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Success   bool       `json:"success"`
	Tokens    TokenUsage `json:"tokens"`
}

// ModelStats is the per-model live aggregate.
type ModelStats struct {
	Model    string     `json:"model"`
	Calls    int64      `json:"calls"`
	Tokens   TokenUsage `json:"tokens"`
	LastUsed time.Time  `json:"last_used"`
}

// ProviderStats is the per-provider live aggregate.
type ProviderStats struct {
	Provider      string                 `json:"provider"`
	TotalRequests int64                  `json:"total_requests"`
	TotalTokens   int64                  `json:"total_tokens"`
	Models        map[string]*ModelStats `json:"models"`
}

// DailyStats buckets a calendar day.
type DailyStats struct {
	Date     string `json:"date"` // "2026-03-01"
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
	Success  int64  `json:"success"`
	Failure  int64  `json:"failure"`
}

// HourlyStats buckets an hour of day (0-23) across all days.
type HourlyStats struct {
	Hour     int   `json:"hour"`
	Requests int64 `json:"requests"`
	Tokens   int64 `json:"tokens"`
	Success  int64 `json:"success"`
	Failure  int64 `json:"failure"`
}

// Stats is the full live snapshot served to the dashboard.
type Stats struct {
	TotalRequests int64                     `json:"total_requests"`
	SuccessCount  int64                     `json:"success_count"`
	FailureCount  int64                     `json:"failure_count"`
	TotalTokens   int64                     `json:"total_tokens"`
	CacheSaved    float64                   `json:"cache_saved_tokens"`
	Providers     map[string]*ProviderStats `json:"providers"`
	Daily         map[string]*DailyStats    `json:"daily"`
	Hourly        map[int]*HourlyStats      `json:"hourly"`
}

// Tracker keeps in-memory live statistics for the dashboard and websocket
// feed. Durable per-request history lives in the request_logs table; this
// only has to survive until the next restart.
type Tracker struct {
	mu    sync.RWMutex
	stats Stats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: Stats{
		Providers: make(map[string]*ProviderStats),
		Daily:     make(map[string]*DailyStats),
		Hourly:    make(map[int]*HourlyStats),
	}}
}

// Record folds one relay outcome into the live counters.
func (t *Tracker) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalRequests++
	if rec.Success {
		t.stats.SuccessCount++
	} else {
		t.stats.FailureCount++
	}
	t.stats.TotalTokens += rec.Tokens.TotalTokens
	t.stats.CacheSaved += CacheSavings(rec.Provider, rec.Tokens)

	if rec.Provider != "" {
		p, ok := t.stats.Providers[rec.Provider]
		if !ok {
			p = &ProviderStats{Provider: rec.Provider, Models: make(map[string]*ModelStats)}
			t.stats.Providers[rec.Provider] = p
		}
		p.TotalRequests++
		p.TotalTokens += rec.Tokens.TotalTokens

		if rec.Model != "" {
			m, ok := p.Models[rec.Model]
			if !ok {
				m = &ModelStats{Model: rec.Model}
				p.Models[rec.Model] = m
			}
			m.Calls++
			m.Tokens.Add(rec.Tokens)
			m.LastUsed = rec.Timestamp
		}
	}

	dateKey := rec.Timestamp.Format("2006-01-02")
	d, ok := t.stats.Daily[dateKey]
	if !ok {
		d = &DailyStats{Date: dateKey}
		t.stats.Daily[dateKey] = d
	}
	d.Requests++
	d.Tokens += rec.Tokens.TotalTokens
	if rec.Success {
		d.Success++
	} else {
		d.Failure++
	}

	hour := rec.Timestamp.Hour()
	h, ok := t.stats.Hourly[hour]
	if !ok {
		h = &HourlyStats{Hour: hour}
		t.stats.Hourly[hour] = h
	}
	h.Requests++
	h.Tokens += rec.Tokens.TotalTokens
	if rec.Success {
		h.Success++
	} else {
		h.Failure++
	}
}

// Snapshot returns a deep copy safe to serialize concurrently.
func (t *Tracker) Snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Stats{
		TotalRequests: t.stats.TotalRequests,
		SuccessCount:  t.stats.SuccessCount,
		FailureCount:  t.stats.FailureCount,
		TotalTokens:   t.stats.TotalTokens,
		CacheSaved:    t.stats.CacheSaved,
		Providers:     make(map[string]*ProviderStats, len(t.stats.Providers)),
		Daily:         make(map[string]*DailyStats, len(t.stats.Daily)),
		Hourly:        make(map[int]*HourlyStats, len(t.stats.Hourly)),
	}
	for k, p := range t.stats.Providers {
		pc := &ProviderStats{
			Provider:      p.Provider,
			TotalRequests: p.TotalRequests,
			TotalTokens:   p.TotalTokens,
			Models:        make(map[string]*ModelStats, len(p.Models)),
		}
		for mk, m := range p.Models {
			mc := *m
			pc.Models[mk] = &mc
		}
		out.Providers[k] = pc
	}
	for k, d := range t.stats.Daily {
		dc := *d
		out.Daily[k] = &dc
	}
	for k, h := range t.stats.Hourly {
		hc := *h
		out.Hourly[k] = &hc
	}
	return out
}
