package distributor

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"aigateway-go/internal/errors"
	"aigateway-go/internal/translator"
)

// RequestInfo is what the relay needs to route an inbound call.
type RequestInfo struct {
	Format translator.Format
	Model  string
	Stream bool
}

// Detect classifies an inbound request by path, headers, and body. Clients
// signal their dialect through the endpoint they chose or through
// vendor-specific headers; the body only supplies model and stream flags.
func Detect(path string, header http.Header, body []byte) (RequestInfo, *errors.APIError) {
	root := gjson.ParseBytes(body)
	info := RequestInfo{
		Model:  root.Get("model").String(),
		Stream: root.Get("stream").Bool(),
	}

	switch {
	case strings.Contains(path, "/v1/messages") || header.Get("anthropic-version") != "":
		info.Format = translator.FormatClaude

	case strings.Contains(path, "/v1/responses"):
		info.Format = translator.FormatOpenAIResponses

	case strings.Contains(path, "/v1beta/") || header.Get("x-goog-api-key") != "":
		info.Format = translator.FormatGemini
		if model, stream, ok := geminiPathModel(path); ok {
			info.Model = model
			info.Stream = stream
		}

	default:
		info.Format = translator.FormatOpenAI
	}

	if info.Model == "" {
		return info, errors.ModelRequired()
	}
	return info, nil
}

// geminiPathModel parses /v1beta/models/{model}:{action} paths. The action
// decides streaming: streamGenerateContent is SSE, generateContent is not.
func geminiPathModel(path string) (model string, stream bool, ok bool) {
	const marker = "/v1beta/models/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "", false, false
	}
	rest := path[idx+len(marker):]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", false, false
	}
	action := rest[colon+1:]
	if slash := strings.IndexByte(action, '/'); slash >= 0 {
		action = action[:slash]
	}
	return rest[:colon], strings.HasPrefix(action, "streamGenerateContent"), true
}
