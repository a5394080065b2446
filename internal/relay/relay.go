package relay

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"aigateway-go/internal/compressor"
	"aigateway-go/internal/distributor"
	"aigateway-go/internal/errors"
	"aigateway-go/internal/events"
	"aigateway-go/internal/models"
	"aigateway-go/internal/riskcontrol"
	"aigateway-go/internal/storage"
	"aigateway-go/internal/tokenizer"
	"aigateway-go/internal/translator"
	"aigateway-go/internal/upstream"
	"aigateway-go/internal/usage"
)

const (
	maxAttempts      = 3
	retryDelay       = time.Second
	upstreamTimeout  = 60 * time.Second
	accountingBudget = 5 * time.Second
)

// Services bundles everything one relay call touches. Initialization order
// is explicit in cmd/server; nothing here is a package-level global.
type Services struct {
	Store       storage.Backend
	Providers   *upstream.Registry
	Distributor *distributor.Distributor
	Risk        *riskcontrol.System
	Compressor  *compressor.Compressor
	Tracker     *usage.Tracker
	Translators *translator.Registry
	Hub         events.Publisher
}

// Request is one authorized inbound call, classified by the distributor.
type Request struct {
	Info  distributor.RequestInfo
	Body  []byte
	Token *models.APIToken
	User  *models.User
}

// Relay drives a request through channel selection, account acquisition,
// format translation, the upstream stream, and accounting.
type Relay struct {
	svc Services

	// test seams
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	rng   *rand.Rand
}

// New builds a relay over the given services.
func New(svc Services) *Relay {
	if svc.Translators == nil {
		svc.Translators = translator.Default()
	}
	return &Relay{
		svc:   svc,
		sleep: sleepCtx,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handle runs the full relay lifecycle and writes the response. A non-nil
// return means nothing was written and the handler must render the error in
// the client's dialect.
func (r *Relay) Handle(ctx context.Context, w http.ResponseWriter, req *Request) *errors.APIError {
	failedChannels := map[int64]bool{}
	var lastErr *errors.APIError

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, retryDelay); err != nil {
				break
			}
		}

		channel, apiErr := r.svc.Distributor.PickExcluding(ctx, req.Info.Model, failedChannels)
		if apiErr != nil {
			if lastErr != nil {
				break
			}
			// Nothing upstream was ever attempted; no log row for pure
			// routing misses.
			return apiErr
		}

		account := r.pickAccount(ctx, channel)
		if account == nil {
			lastErr = errors.NoAvailableAccount(channel.Name)
			log.WithFields(log.Fields{
				"channel": channel.Name,
				"attempt": attempt + 1,
			}).Warn("no available account on channel")
			// Cross-group retry: after a miss, let the next attempt consider
			// other channels that carry the model.
			if req.Token != nil && req.Token.CrossGroupRetry {
				failedChannels[channel.ID] = true
			}
			continue
		}

		out := r.attempt(ctx, w, req, channel, account)
		r.recordAttempt(channel, account, out)

		if out.err == nil || out.bytesWritten > 0 {
			// Terminal either way: the stream is committed to the client.
			r.finalize(req, channel, account, out)
			return nil
		}

		lastErr = out.err
		if !out.err.IsRetryable() {
			break
		}
		failedChannels[channel.ID] = true
	}

	if lastErr == nil {
		lastErr = errors.New(http.StatusBadGateway, "upstream_error", "upstream_error",
			"All attempts to reach an upstream provider failed")
	}
	r.logFailure(req, lastErr)
	return lastErr
}

// pickAccount draws a random enabled account with remaining credit,
// restricted to the ones the health monitor still allows.
func (r *Relay) pickAccount(ctx context.Context, channel *models.Channel) *models.Account {
	accounts, err := r.svc.Store.EnabledAccounts(ctx, channel.Type)
	if err != nil {
		log.WithError(err).Error("failed to list accounts")
		return nil
	}

	candidates := accounts[:0]
	for i := range accounts {
		a := &accounts[i]
		if !a.HasCredit() {
			continue
		}
		if r.svc.Risk != nil && r.svc.Risk.Health != nil && !r.svc.Risk.Health.Available(a.ID) {
			continue
		}
		candidates = append(candidates, *a)
	}
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[r.rng.Intn(len(candidates))]
}

// chatOptions assembles the per-call account context: proxy-bound client,
// fingerprint headers, provider credentials.
func (r *Relay) chatOptions(account *models.Account) upstream.ChatOptions {
	opts := upstream.ChatOptions{
		APIKey:          account.APIKey,
		AccountID:       account.ID,
		CredentialsJSON: account.APIKey,
	}
	if r.svc.Risk == nil {
		return opts
	}
	if r.svc.Risk.Proxies != nil {
		if p := r.svc.Risk.Proxies.ForAccount(account.ID); p != nil {
			opts.Client = upstream.NewHTTPClient(p.Config.URL(), upstreamTimeout)
		}
	}
	if r.svc.Risk.Fingerprints != nil {
		h := http.Header{}
		r.svc.Risk.Fingerprints.ForAccount(account.ID).Apply(h)
		opts.Headers = h
	}
	return opts
}

// prepareBody translates the inbound payload to the provider's dialect,
// compressing over-long histories and placing cache breakpoints first.
func (r *Relay) prepareBody(ctx context.Context, req *Request, channel *models.Channel, provider upstream.Provider) ([]byte, compressor.Result) {
	body := req.Body
	var comp compressor.Result

	settings, err := r.svc.Store.CacheSettings(ctx)
	if err != nil {
		settings = models.DefaultCacheSettings()
	}

	if r.svc.Compressor != nil && settings.CompressionEnabled {
		if messages := gjson.GetBytes(body, "messages"); messages.IsArray() {
			r.svc.Compressor.SetConfig(compressor.Config{
				Enabled:   true,
				Threshold: settings.CompressionThreshold,
				Target:    settings.CompressionTarget,
				Strategy:  compressor.Strategy(settings.CompressionStrategy),
			})
			comp = r.svc.Compressor.CompressIfNeeded(ctx, []byte(messages.Raw), req.Info.Model)
			if comp.Compressed {
				body, _ = sjson.SetRawBytes(body, "messages", comp.Messages)
			}
		}
	}

	from := translator.Normalize(req.Info.Format)
	to := translator.Normalize(provider.Format())
	upstreamModel := channel.MappedModel(req.Info.Model)
	if from != to {
		body = r.svc.Translators.TranslateRequest(from, to, upstreamModel, body, req.Info.Stream)
	}
	// Gemini carries the model in the URL, every other dialect in the body.
	if to != translator.FormatGemini {
		body, _ = sjson.SetBytes(body, "model", upstreamModel)
	}

	if settings.PromptCacheEnabled && to == translator.FormatClaude {
		body = compressor.ApplyCacheMarkers(body)
	}
	return body, comp
}

// estimateRequestTokens is the pre-flight estimate fed to the rate limiter.
func estimateRequestTokens(body []byte, model string) int {
	messages := gjson.GetBytes(body, "messages")
	if messages.IsArray() {
		system := gjson.GetBytes(body, "system").String()
		tools := gjson.GetBytes(body, "tools")
		return tokenizer.CountMessages(messages, system, tools, model)
	}
	return tokenizer.EstimateForModel(string(body), model)
}

// logFailure writes the single terminal log row for a relay that never
// produced a byte.
func (r *Relay) logFailure(req *Request, apiErr *errors.APIError) {
	ctx, cancel := context.WithTimeout(context.Background(), accountingBudget)
	defer cancel()

	row := &models.RequestLog{
		Model:     req.Info.Model,
		Status:    apiErr.HTTPStatus,
		Error:     apiErr.Message,
		CreatedAt: r.now(),
	}
	if req.User != nil {
		row.UserID = req.User.ID
	}
	if err := r.svc.Store.InsertRequestLog(ctx, row); err != nil {
		log.WithError(err).Error("failed to write request log")
	}
}
