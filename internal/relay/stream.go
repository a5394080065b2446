package relay

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/errors"
	"aigateway-go/internal/models"
	"aigateway-go/internal/monitoring"
	"aigateway-go/internal/translator"
	"aigateway-go/internal/upstream"
	"aigateway-go/internal/usage"
)

// outcome is everything one attempt produced, fed into accounting.
type outcome struct {
	err           *errors.APIError
	bytesWritten  int64
	chunks        int
	duration      time.Duration
	usage         usage.TokenUsage
	usageSeen     bool
	compressed    bool
	originalTok   int
	compressedTok int
	clientGone    bool
	model         string
}

// attempt runs exactly one upstream call. It owns the in-flight stream for
// its account; chunks reach the client in upstream order.
func (r *Relay) attempt(ctx context.Context, w http.ResponseWriter, req *Request, channel *models.Channel, account *models.Account) outcome {
	start := r.now()
	out := outcome{model: req.Info.Model}

	provider := r.svc.Providers.Get(channel.Type)
	if provider == nil {
		out.err = errors.New(http.StatusInternalServerError, "unknown_provider", "server_error",
			"No adapter registered for provider: "+channel.Type)
		out.duration = r.now().Sub(start)
		return out
	}

	estimated := estimateRequestTokens(req.Body, req.Info.Model)
	if r.svc.Risk != nil && r.svc.Risk.Limiter != nil {
		userID := int64(0)
		if req.User != nil {
			userID = req.User.ID
		}
		delay, err := r.svc.Risk.Limiter.Acquire(ctx, account.ID, userID, estimated)
		if err != nil {
			out.err = errors.New(http.StatusRequestTimeout, "request_canceled", "timeout_error",
				"Request canceled while rate limited")
			out.duration = r.now().Sub(start)
			return out
		}
		monitoring.RateLimitDelays.Observe(delay.Seconds())
		if delay > 0 {
			log.WithFields(log.Fields{
				"account_id": account.ID,
				"delay_ms":   delay.Milliseconds(),
			}).Debug("rate limiter imposed delay")
		}
	}

	body, comp := r.prepareBody(ctx, req, channel, provider)
	out.compressed = comp.Compressed
	out.originalTok = comp.OriginalTokens
	out.compressedTok = comp.CompressedTokens

	opts := r.chatOptions(account)
	upstreamModel := channel.MappedModel(req.Info.Model)

	callCtx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	if req.Info.Stream {
		r.streamAttempt(callCtx, w, req, provider, upstreamModel, body, opts, &out)
	} else {
		r.unaryAttempt(callCtx, w, req, provider, channel.Type, upstreamModel, body, opts, &out)
	}

	out.duration = r.now().Sub(start)
	if !out.usageSeen && out.err == nil {
		// Coarse fallback when the upstream never reported usage.
		out.usage.InputTokens = int64(estimated)
		out.usage.OutputTokens = int64(out.chunks)
		out.usage.TotalTokens = out.usage.InputTokens + out.usage.OutputTokens
	}
	return out
}

func (r *Relay) unaryAttempt(ctx context.Context, w http.ResponseWriter, req *Request, provider upstream.Provider, providerType, model string, body []byte, opts upstream.ChatOptions, out *outcome) {
	respBody, err := provider.Chat(ctx, model, body, opts)
	if err != nil {
		out.err = asAPIError(err)
		return
	}

	out.usage = usage.Extract(providerType, respBody)
	out.usageSeen = out.usage.TotalTokens > 0

	from := translator.Normalize(provider.Format())
	to := translator.Normalize(req.Info.Format)
	if from != to {
		translated, terr := r.svc.Translators.TranslateResponse(ctx, from, to, req.Info.Model, respBody)
		if terr == nil {
			respBody = translated
		}
	}

	w.Header().Set("Content-Type", "application/json")
	n, werr := w.Write(respBody)
	out.bytesWritten = int64(n)
	if werr != nil {
		out.clientGone = true
	}
}

func (r *Relay) streamAttempt(ctx context.Context, w http.ResponseWriter, req *Request, provider upstream.Provider, model string, body []byte, opts upstream.ChatOptions, out *outcome) {
	upstreamBody, err := provider.ChatStream(ctx, model, body, opts)
	if err != nil {
		out.err = asAPIError(err)
		return
	}
	defer upstreamBody.Close()

	var reader io.Reader = upstreamBody
	from := translator.Normalize(provider.Format())
	to := translator.Normalize(req.Info.Format)
	if from != to {
		translated, terr := r.svc.Translators.TranslateStream(ctx, from, to, req.Info.Model, reader)
		if terr != nil {
			out.err = errors.New(http.StatusInternalServerError, "translation_error", "server_error", terr.Error())
			return
		}
		reader = translated
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	watcher := newUsageWatcher(to)

	monitoring.StreamsActive.Inc()
	defer monitoring.StreamsActive.Dec()

	// The client write is the back-pressure signal: the upstream read
	// blocks while the writer stalls, strict FIFO within this relay.
	br := bufio.NewReaderSize(reader, 64*1024)
	for {
		line, rerr := br.ReadBytes('\n')
		if len(line) > 0 {
			watcher.observe(line)
			n, werr := w.Write(line)
			out.bytesWritten += int64(n)
			if werr != nil {
				out.clientGone = true
				log.WithField("written", out.bytesWritten).Info("client disconnected mid-stream")
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
			if bytes.HasPrefix(line, []byte("data:")) {
				out.chunks++
			}
		}
		if rerr != nil {
			if rerr != io.EOF && !out.clientGone {
				out.err = asAPIError(rerr)
			}
			break
		}
	}

	out.usage, out.usageSeen = watcher.result()
}

func asAPIError(err error) *errors.APIError {
	if apiErr, ok := err.(*errors.APIError); ok {
		return apiErr
	}
	return errors.MapNetworkError(err)
}
