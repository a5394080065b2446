package riskcontrol

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Browser header pools. Kept to real, current browser strings so outbound
// traffic blends with ordinary client populations.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 Edg/121.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7",
	"zh-CN,zh;q=0.9,en;q=0.8",
	"ja-JP,ja;q=0.9,en;q=0.8",
	"ko-KR,ko;q=0.9,en;q=0.8",
	"de-DE,de;q=0.9,en;q=0.8",
	"fr-FR,fr;q=0.9,en;q=0.8",
	"es-ES,es;q=0.9,en;q=0.8",
}

var secChUAValues = []string{
	`"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	`"Not A(Brand";v="99", "Chromium";v="121", "Google Chrome";v="121"`,
	`"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
	`"Not_A Brand";v="8", "Chromium";v="120", "Microsoft Edge";v="120"`,
	`"Not A(Brand";v="99", "Chromium";v="121", "Microsoft Edge";v="121"`,
}

const fingerprintPoolSize = 50

// Fingerprint is one consistent set of browser-identifying headers.
type Fingerprint struct {
	UserAgent      string
	AcceptLanguage string
	SecChUA        string
}

func (f Fingerprint) isChromium() bool {
	return strings.Contains(f.UserAgent, "Chrome/") || strings.Contains(f.UserAgent, "Edg/")
}

func (f Fingerprint) platform() string {
	switch {
	case strings.Contains(f.UserAgent, "Windows"):
		return `"Windows"`
	case strings.Contains(f.UserAgent, "Macintosh"):
		return `"macOS"`
	case strings.Contains(f.UserAgent, "Linux"):
		return `"Linux"`
	default:
		return `"Unknown"`
	}
}

// Apply writes the fingerprint headers onto an outbound request.
// Client-hint headers are only meaningful for Chromium browsers.
func (f Fingerprint) Apply(h http.Header) {
	h.Set("User-Agent", f.UserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", f.AcceptLanguage)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	if f.isChromium() {
		h.Set("Sec-CH-UA", f.SecChUA)
		h.Set("Sec-CH-UA-Mobile", "?0")
		h.Set("Sec-CH-UA-Platform", f.platform())
	}
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
}

// FingerprintPool hands out stable per-account fingerprints from a fixed set
// generated at startup.
type FingerprintPool struct {
	mu           sync.Mutex
	fingerprints []Fingerprint
	rng          *rand.Rand
}

// NewFingerprintPool pre-generates the fingerprint set.
func NewFingerprintPool() *FingerprintPool {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fps := make([]Fingerprint, fingerprintPoolSize)
	for i := range fps {
		ua := userAgents[rng.Intn(len(userAgents))]
		fps[i] = Fingerprint{
			UserAgent:      ua,
			AcceptLanguage: acceptLanguages[rng.Intn(len(acceptLanguages))],
			SecChUA:        secChUAValues[rng.Intn(len(secChUAValues))],
		}
	}
	return &FingerprintPool{fingerprints: fps, rng: rng}
}

// ForAccount returns the fingerprint pinned to an account. Each account keeps
// the same fingerprint across requests so its traffic stays self-consistent.
func (p *FingerprintPool) ForAccount(accountID int64) Fingerprint {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := int(accountID % int64(len(p.fingerprints)))
	if idx < 0 {
		idx += len(p.fingerprints)
	}
	return p.fingerprints[idx]
}

// TimingJitter returns a human-ish delay to insert before a request: a small
// uniform component, occasionally stretched as if the operator paused.
func (p *FingerprintPool) TimingJitter() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := time.Duration(p.rng.Float64() * float64(2*time.Second))
	if p.rng.Float64() < 0.10 {
		d += time.Duration((3 + p.rng.Float64()*5) * float64(time.Second))
	}
	return d
}
