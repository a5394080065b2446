package distributor

import (
	"context"

	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/errors"
	"aigateway-go/internal/models"
)

// ChannelSource is the slice of the storage backend the distributor needs.
type ChannelSource interface {
	ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error)
}

// Distributor routes models to channels.
type Distributor struct {
	channels ChannelSource
	balancer *Balancer
}

// New builds a distributor over the given channel source.
func New(channels ChannelSource, balancer *Balancer) *Distributor {
	if balancer == nil {
		balancer = NewBalancer(StrategyWeighted, nil)
	}
	return &Distributor{channels: channels, balancer: balancer}
}

// Balancer exposes the underlying balancer for runtime strategy changes.
func (d *Distributor) Balancer() *Balancer {
	return d.balancer
}

// ChannelsForModel returns the enabled channels that carry the model.
func (d *Distributor) ChannelsForModel(ctx context.Context, model string) ([]models.Channel, error) {
	all, err := d.channels.ListChannels(ctx, true)
	if err != nil {
		return nil, err
	}
	var out []models.Channel
	for i := range all {
		if all[i].SupportsModel(model) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Pick selects a channel for the model, 503 model_not_found when no
// enabled channel carries it.
func (d *Distributor) Pick(ctx context.Context, model string) (*models.Channel, *errors.APIError) {
	candidates, err := d.ChannelsForModel(ctx, model)
	if err != nil {
		log.WithError(err).Error("Failed to list channels")
		return nil, errors.New(500, "channel_list_error", "server_error", err.Error())
	}
	picked := d.balancer.Pick(candidates)
	if picked == nil {
		return nil, errors.ModelNotFound(model)
	}
	return picked, nil
}

// PickExcluding picks again while skipping channels that already failed
// this request, used by the relay's failover loop.
func (d *Distributor) PickExcluding(ctx context.Context, model string, exclude map[int64]bool) (*models.Channel, *errors.APIError) {
	candidates, err := d.ChannelsForModel(ctx, model)
	if err != nil {
		return nil, errors.New(500, "channel_list_error", "server_error", err.Error())
	}
	remaining := candidates[:0]
	for i := range candidates {
		if !exclude[candidates[i].ID] {
			remaining = append(remaining, candidates[i])
		}
	}
	picked := d.balancer.Pick(remaining)
	if picked == nil {
		return nil, errors.ModelNotFound(model)
	}
	return picked, nil
}
