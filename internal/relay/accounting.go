package relay

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/events"
	"aigateway-go/internal/models"
	"aigateway-go/internal/monitoring"
	"aigateway-go/internal/riskcontrol"
	"aigateway-go/internal/storage"
	"aigateway-go/internal/usage"
)

// recordAttempt feeds one attempt's result into the in-memory fabric:
// channel stats, account health, proxy counters.
func (r *Relay) recordAttempt(channel *models.Channel, account *models.Account, out outcome) {
	success := out.err == nil

	ctx, cancel := context.WithTimeout(context.Background(), accountingBudget)
	defer cancel()
	if err := r.svc.Store.RecordChannelResult(ctx, channel.ID, !success, out.duration.Milliseconds()); err != nil {
		log.WithError(err).Warn("failed to record channel result")
	}

	if r.svc.Risk != nil {
		if r.svc.Risk.Health != nil {
			if success {
				r.svc.Risk.Health.RecordSuccess(account.ID)
			} else {
				r.svc.Risk.Health.RecordFailure(account.ID, failureKind(out.err.HTTPStatus))
			}
		}
		if r.svc.Risk.Proxies != nil {
			if p := r.svc.Risk.Proxies.ForAccount(account.ID); p != nil {
				p.RecordRequest(out.duration, success)
			}
		}
	}

	monitoring.UpstreamDuration.WithLabelValues(channel.Type).Observe(out.duration.Seconds())
	if !success {
		monitoring.UpstreamFailures.WithLabelValues(channel.Type,
			failureLabel(failureKind(out.err.HTTPStatus))).Inc()
	}

	if r.svc.Hub != nil {
		r.svc.Hub.Publish(ctx, events.TopicChannelResult, map[string]interface{}{
			"channel_id":  channel.ID,
			"account_id":  account.ID,
			"provider":    channel.Type,
			"success":     success,
			"duration_ms": out.duration.Milliseconds(),
		}, nil)
	}
}

func failureKind(httpStatus int) riskcontrol.FailureKind {
	switch httpStatus {
	case http.StatusTooManyRequests:
		return riskcontrol.FailureRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return riskcontrol.FailureAuth
	default:
		return riskcontrol.FailureGeneric
	}
}

func failureLabel(kind riskcontrol.FailureKind) string {
	switch kind {
	case riskcontrol.FailureRateLimit:
		return "rate_limit"
	case riskcontrol.FailureAuth:
		return "auth"
	default:
		return "generic"
	}
}

// finalize runs the terminal accounting for a relay that committed output
// to the client: one log row, usage counters on token, user, and account.
// Client disconnects never cancel this path; it runs on its own deadline.
func (r *Relay) finalize(req *Request, channel *models.Channel, account *models.Account, out outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), accountingBudget)
	defer cancel()

	status := http.StatusOK
	errText := ""
	if out.err != nil {
		status = http.StatusInternalServerError
		errText = out.err.Message
	}
	if out.clientGone && out.bytesWritten == 0 {
		status = http.StatusInternalServerError
		errText = "client_disconnected"
	}
	if out.bytesWritten > 0 {
		status = http.StatusOK
	}

	row := &models.RequestLog{
		ChannelID:           channel.ID,
		ProviderType:        channel.Type,
		Model:               out.model,
		InputTokens:         out.usage.InputTokens,
		OutputTokens:        out.usage.OutputTokens,
		CacheReadTokens:     out.usage.CacheReadTokens,
		CacheCreationTokens: out.usage.CacheCreationTokens,
		DurationMS:          out.duration.Milliseconds(),
		Status:              status,
		Error:               errText,
		ContextCompressed:   out.compressed,
		OriginalTokens:      int64(out.originalTok),
		CompressedTokens:    int64(out.compressedTok),
		CreatedAt:           r.now(),
	}
	if req.User != nil {
		row.UserID = req.User.ID
	}
	if err := r.svc.Store.InsertRequestLog(ctx, row); err != nil {
		log.WithError(err).Error("failed to write request log")
	}

	quota := usage.QuotaUsage(out.model, out.usage)
	in, outTok := out.usage.InputTokens, out.usage.OutputTokens

	if req.Token != nil {
		quotaDelta := quota
		if req.Token.UnlimitedQuota {
			quotaDelta = 0
		}
		if err := r.svc.Store.RecordTokenUsage(ctx, req.Token.ID, quotaDelta, in, outTok); err != nil {
			log.WithError(err).Error("failed to record token usage")
		}
	}
	if req.User != nil {
		if err := r.svc.Store.RecordUserUsage(ctx, req.User.ID, quota, in, outTok); err != nil {
			log.WithError(err).Error("failed to record user usage")
		}
	}

	// The account may have been deleted while the stream was in flight; in
	// that case accounting on it is skipped, not retried.
	if err := r.svc.Store.RecordAccountUsage(ctx, account.ID, 0, in, outTok); err != nil {
		if storage.IsNotFound(err) {
			log.WithField("account_id", account.ID).Warn("account deleted mid-flight, skipping usage accounting")
		} else {
			log.WithError(err).Error("failed to record account usage")
		}
	}

	if r.svc.Tracker != nil {
		r.svc.Tracker.Record(usage.Record{
			Timestamp: time.Now(),
			ChannelID: channel.ID,
			Provider:  channel.Type,
			Model:     out.model,
			Success:   out.err == nil,
			Tokens:    out.usage,
		})
	}

	monitoring.ObserveRelay(channel.Type, in, outTok)

	if r.svc.Hub != nil {
		r.svc.Hub.Publish(ctx, events.TopicRequestDone, map[string]interface{}{
			"channel_id":    channel.ID,
			"provider":      channel.Type,
			"model":         out.model,
			"status":        status,
			"input_tokens":  in,
			"output_tokens": outTok,
			"duration_ms":   out.duration.Milliseconds(),
		}, nil)
	}

	if out.usage.CacheReadTokens > 0 || out.usage.CacheCreationTokens > 0 {
		log.Info(usage.FormatCacheStats(channel.Type, out.usage))
	}
}
