package distributor

import (
	"math/rand"
	"sync"
	"time"

	"aigateway-go/internal/models"
)

// Strategy selects among the channels that carry a model.
type Strategy string

const (
	StrategyWeighted          Strategy = "weighted"
	StrategyPriorityFirst     Strategy = "priority_first"
	StrategyLeastResponseTime Strategy = "least_response_time"
	StrategyRoundRobin        Strategy = "round_robin"
)

// PenaltyFunc scales a channel's weighted score, 0.0 excluding it entirely.
// The relay plugs the account health monitor in here.
type PenaltyFunc func(channel *models.Channel) float64

// Balancer picks a channel per request.
type Balancer struct {
	mu       sync.Mutex
	strategy Strategy
	penalty  PenaltyFunc
	rng      *rand.Rand
}

// NewBalancer builds a balancer; a nil penalty treats every channel as
// fully healthy.
func NewBalancer(strategy Strategy, penalty PenaltyFunc) *Balancer {
	if strategy == "" {
		strategy = StrategyWeighted
	}
	return &Balancer{
		strategy: strategy,
		penalty:  penalty,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetStrategy switches the selection strategy at runtime.
func (b *Balancer) SetStrategy(s Strategy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strategy = s
}

// score is the weighted-strategy fitness of a channel: priority dominates,
// then weight, then observed success rate, minus a latency malus.
func score(c *models.Channel) float64 {
	s := float64(c.Priority)*100 + float64(c.Weight)*10 +
		c.SuccessRate()*5 - c.AvgLatencyMS()/1000
	if s < 1 {
		s = 1
	}
	return s
}

func (b *Balancer) penaltyFor(c *models.Channel) float64 {
	if b.penalty == nil {
		return 1.0
	}
	return b.penalty(c)
}

// Pick selects one channel from candidates, or nil when none qualify.
func (b *Balancer) Pick(candidates []models.Channel) *models.Channel {
	if len(candidates) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.strategy {
	case StrategyPriorityFirst:
		return b.pickPriorityFirst(candidates)
	case StrategyLeastResponseTime:
		return b.pickLeastResponseTime(candidates)
	case StrategyRoundRobin:
		return b.pickRoundRobin(candidates)
	default:
		return b.pickWeighted(candidates)
	}
}

func (b *Balancer) pickWeighted(candidates []models.Channel) *models.Channel {
	scores := make([]float64, len(candidates))
	var total float64
	for i := range candidates {
		scores[i] = score(&candidates[i]) * b.penaltyFor(&candidates[i])
		total += scores[i]
	}
	if total <= 0 {
		return nil
	}
	target := b.rng.Float64() * total
	for i := range candidates {
		target -= scores[i]
		if target < 0 {
			return &candidates[i]
		}
	}
	return &candidates[len(candidates)-1]
}

func (b *Balancer) pickPriorityFirst(candidates []models.Channel) *models.Channel {
	best := candidates[0].Priority
	for i := range candidates {
		if candidates[i].Priority > best {
			best = candidates[i].Priority
		}
	}
	top := make([]models.Channel, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Priority == best {
			top = append(top, candidates[i])
		}
	}
	return b.pickWeighted(top)
}

func (b *Balancer) pickLeastResponseTime(candidates []models.Channel) *models.Channel {
	var best *models.Channel
	for i := range candidates {
		c := &candidates[i]
		if c.TotalRequests == 0 || b.penaltyFor(c) <= 0 {
			continue
		}
		if best == nil || c.AvgLatencyMS() < best.AvgLatencyMS() {
			best = c
		}
	}
	if best == nil {
		// No latency data yet, fall back to the weighted pick.
		return b.pickWeighted(candidates)
	}
	return best
}

func (b *Balancer) pickRoundRobin(candidates []models.Channel) *models.Channel {
	var best *models.Channel
	for i := range candidates {
		c := &candidates[i]
		if b.penaltyFor(c) <= 0 {
			continue
		}
		if best == nil || c.TotalRequests < best.TotalRequests {
			best = c
		}
	}
	return best
}
