package riskcontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ProxyProtocol is the proxy transport scheme.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySOCKS5 ProxyProtocol = "socks5"
	ProxySOCKS4 ProxyProtocol = "socks4"
)

// ProxyStrategy selects how proxies are assigned to accounts.
type ProxyStrategy string

const (
	StrategyRandom     ProxyStrategy = "random"
	StrategySticky     ProxyStrategy = "sticky"
	StrategyRoundRobin ProxyStrategy = "round_robin"
	StrategyLeastUsed  ProxyStrategy = "least_used"
)

const (
	proxyDeadThreshold      = 3
	proxyProbeTimeout       = 10 * time.Second
	proxyProbeURL           = "https://api.ipify.org?format=json"
	DefaultProxyProbePeriod = 5 * time.Minute
)

// ProxyConfig describes one upstream proxy endpoint.
type ProxyConfig struct {
	Host     string        `json:"host" yaml:"host"`
	Port     int           `json:"port" yaml:"port"`
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol"`
	Username string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
	Country  string        `json:"country,omitempty" yaml:"country,omitempty"`
	Region   string        `json:"region,omitempty" yaml:"region,omitempty"`
	ISP      string        `json:"isp,omitempty" yaml:"isp,omitempty"`
}

// URL renders the proxy address including credentials when present.
func (c ProxyConfig) URL() *url.URL {
	proto := c.Protocol
	if proto == "" {
		proto = ProxyHTTP
	}
	u := &url.URL{
		Scheme: string(proto),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}
	if c.Username != "" && c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u
}

func (c ProxyConfig) String() string {
	proto := c.Protocol
	if proto == "" {
		proto = ProxyHTTP
	}
	return fmt.Sprintf("%s://%s:%d", proto, c.Host, c.Port)
}

// Proxy is one pool member with its rolling stats.
type Proxy struct {
	Config ProxyConfig

	mu                  sync.Mutex
	totalRequests       int64
	failedRequests      int64
	totalResponseTime   time.Duration
	lastUsedAt          time.Time
	lastCheckAt         time.Time
	alive               bool
	consecutiveFailures int
	boundAccounts       map[int64]struct{}
}

func newProxy(cfg ProxyConfig) *Proxy {
	return &Proxy{Config: cfg, alive: true, boundAccounts: make(map[int64]struct{})}
}

// Alive reports whether the proxy is considered usable.
func (p *Proxy) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// RecordRequest folds one request outcome into the proxy stats. Three
// consecutive failures take the proxy out of rotation until a probe passes.
func (p *Proxy) RecordRequest(responseTime time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalRequests++
	p.totalResponseTime += responseTime
	p.lastUsedAt = time.Now()
	if success {
		p.consecutiveFailures = 0
		return
	}
	p.failedRequests++
	p.consecutiveFailures++
	if p.consecutiveFailures >= proxyDeadThreshold && p.alive {
		p.alive = false
		log.WithField("proxy", p.Config.String()).Warn("proxy marked dead after consecutive failures")
	}
}

func (p *Proxy) requestCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalRequests
}

// SuccessRate is 1.0 for an unused proxy.
func (p *Proxy) SuccessRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalRequests == 0 {
		return 1.0
	}
	return 1.0 - float64(p.failedRequests)/float64(p.totalRequests)
}

// AvgResponseTime averages over all recorded requests.
func (p *Proxy) AvgResponseTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalRequests == 0 {
		return 0
	}
	return p.totalResponseTime / time.Duration(p.totalRequests)
}

// CheckHealth probes the proxy by fetching the caller's public IP through it.
func (p *Proxy) CheckHealth(ctx context.Context) bool {
	p.mu.Lock()
	p.lastCheckAt = time.Now()
	p.mu.Unlock()

	client := &http.Client{
		Timeout: proxyProbeTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(p.Config.URL()),
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyProbeURL, nil)
	if err != nil {
		return false
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		log.WithFields(log.Fields{"proxy": p.Config.String(), "error": err}).Warn("proxy health check failed")
		p.mu.Lock()
		p.alive = false
		p.mu.Unlock()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.mu.Lock()
		p.alive = false
		p.mu.Unlock()
		return false
	}

	var body struct {
		IP string `json:"ip"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	p.mu.Lock()
	p.alive = true
	p.consecutiveFailures = 0
	p.mu.Unlock()
	log.WithFields(log.Fields{
		"proxy":       p.Config.String(),
		"exit_ip":     body.IP,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("proxy health check passed")
	return true
}

// ProxyPool distributes outbound traffic over a set of proxies.
type ProxyPool struct {
	mu         sync.Mutex
	proxies    []*Proxy
	strategy   ProxyStrategy
	accountMap map[int64]*Proxy
	rrIndex    int
	rng        *rand.Rand
}

// NewProxyPool builds an empty pool with the given assignment strategy.
func NewProxyPool(strategy ProxyStrategy) *ProxyPool {
	if strategy == "" {
		strategy = StrategySticky
	}
	return &ProxyPool{
		strategy:   strategy,
		accountMap: make(map[int64]*Proxy),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add registers a proxy with the pool.
func (pp *ProxyPool) Add(cfg ProxyConfig) *Proxy {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p := newProxy(cfg)
	pp.proxies = append(pp.proxies, p)
	log.WithField("proxy", cfg.String()).Info("added proxy to pool")
	return p
}

// AddBatch registers several proxies at once.
func (pp *ProxyPool) AddBatch(cfgs []ProxyConfig) {
	for _, cfg := range cfgs {
		pp.Add(cfg)
	}
}

// Remove drops a proxy and clears any account bindings to it.
func (pp *ProxyPool) Remove(p *Proxy) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	for i, q := range pp.proxies {
		if q == p {
			pp.proxies = append(pp.proxies[:i], pp.proxies[i+1:]...)
			break
		}
	}
	for id, bound := range pp.accountMap {
		if bound == p {
			delete(pp.accountMap, id)
		}
	}
}

func (pp *ProxyPool) aliveLocked() []*Proxy {
	var out []*Proxy
	for _, p := range pp.proxies {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// ForAccount picks a proxy for the account per the pool strategy. Returns nil
// when no proxy is alive, in which case the caller goes direct.
func (pp *ProxyPool) ForAccount(accountID int64) *Proxy {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	alive := pp.aliveLocked()
	if len(alive) == 0 {
		return nil
	}

	switch pp.strategy {
	case StrategySticky:
		if p, ok := pp.accountMap[accountID]; ok {
			if p.Alive() {
				return p
			}
			delete(pp.accountMap, accountID)
		}
		// Bind to the proxy carrying the fewest accounts.
		best := alive[0]
		for _, p := range alive[1:] {
			if len(p.boundAccounts) < len(best.boundAccounts) {
				best = p
			}
		}
		best.mu.Lock()
		best.boundAccounts[accountID] = struct{}{}
		best.mu.Unlock()
		pp.accountMap[accountID] = best
		log.WithFields(log.Fields{"account_id": accountID, "proxy": best.Config.String()}).Info("bound account to proxy")
		return best
	case StrategyRandom:
		return alive[pp.rng.Intn(len(alive))]
	case StrategyRoundRobin:
		p := alive[pp.rrIndex%len(alive)]
		pp.rrIndex++
		return p
	case StrategyLeastUsed:
		best := alive[0]
		for _, p := range alive[1:] {
			if p.requestCount() < best.requestCount() {
				best = p
			}
		}
		return best
	default:
		return nil
	}
}

// CheckAll probes every pool member and reports how many are alive.
func (pp *ProxyPool) CheckAll(ctx context.Context) int {
	pp.mu.Lock()
	proxies := make([]*Proxy, len(pp.proxies))
	copy(proxies, pp.proxies)
	pp.mu.Unlock()

	var wg sync.WaitGroup
	var aliveCount int64
	var countMu sync.Mutex
	for _, p := range proxies {
		wg.Add(1)
		go func(p *Proxy) {
			defer wg.Done()
			if p.CheckHealth(ctx) {
				countMu.Lock()
				aliveCount++
				countMu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	log.WithFields(log.Fields{"alive": aliveCount, "total": len(proxies)}).Info("proxy pool health check completed")
	return int(aliveCount)
}

// Stats summarizes the pool for the admin API.
func (pp *ProxyPool) Stats() map[string]interface{} {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	alive := pp.aliveLocked()

	members := make([]map[string]interface{}, 0, len(pp.proxies))
	for _, p := range pp.proxies {
		p.mu.Lock()
		members = append(members, map[string]interface{}{
			"proxy":             p.Config.String(),
			"country":           p.Config.Country,
			"region":            p.Config.Region,
			"is_alive":          p.alive,
			"total_requests":    p.totalRequests,
			"success_rate":      fmt.Sprintf("%.1f%%", successRateLocked(p)*100),
			"avg_response_time": avgResponseLocked(p).String(),
			"bound_accounts":    len(p.boundAccounts),
		})
		p.mu.Unlock()
	}

	return map[string]interface{}{
		"total_proxies":  len(pp.proxies),
		"alive_proxies":  len(alive),
		"dead_proxies":   len(pp.proxies) - len(alive),
		"strategy":       string(pp.strategy),
		"bound_accounts": len(pp.accountMap),
		"proxies":        members,
	}
}

func successRateLocked(p *Proxy) float64 {
	if p.totalRequests == 0 {
		return 1.0
	}
	return 1.0 - float64(p.failedRequests)/float64(p.totalRequests)
}

func avgResponseLocked(p *Proxy) time.Duration {
	if p.totalRequests == 0 {
		return 0
	}
	return p.totalResponseTime / time.Duration(p.totalRequests)
}
