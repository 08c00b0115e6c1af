// Package docreader extracts the customer address from a utility bill or
// similar proof-of-address document with an OpenAI vision model.
package docreader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"skill-runner/internal/constants"
	"skill-runner/internal/models"
	"skill-runner/internal/prompts"
	"skill-runner/pkg/circuit"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

var (
	mTokens   = metrics.Default.Counter("llm_tokens_total", "Tokens consumed by document extraction")
	mRequests = metrics.Default.CounterVec("llm_requests_total", "Document extraction calls by outcome", "outcome")
)

// ChatClient is the part of *openai.Client the reader uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Document is an uploaded proof of address.
type Document struct {
	Data         []byte
	MimeType     string
	Filename     string
	Instructions string
}

// Extraction is what the model read from the document.
type Extraction struct {
	DocumentType  string                  `json:"tipo_documento,omitempty"`
	ServiceName   string                  `json:"nombre_servicio,omitempty"`
	ServiceNumber string                  `json:"numero_servicio,omitempty"`
	Holder        string                  `json:"titular,omitempty"`
	Address       models.ExtractedAddress `json:"direccion"`
}

// Options configures a Reader.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	RPS         float64
	Logger      *logging.Logger
}

// Reader sends documents to the chat completion API.
type Reader struct {
	client  ChatClient
	prompts *prompts.Manager
	opts    Options
	breaker *circuit.Breaker
	costs   *CostTracker
	log     *logging.ComponentLogger

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// New builds a Reader over the OpenAI API. An empty key yields a reader
// whose every call fails with a config error.
func New(apiKey string, pm *prompts.Manager, opts Options) *Reader {
	var client ChatClient
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if opts.Timeout > 0 {
			cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
		}
		client = openai.NewClientWithConfig(cfg)
	}
	return NewWithClient(client, pm, opts)
}

// NewWithClient builds a Reader over any ChatClient.
func NewWithClient(client ChatClient, pm *prompts.Manager, opts Options) *Reader {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 800
	}
	cfg := circuit.DefaultConfig("openai_extract")
	cfg.OperationTimeout = constants.DocReaderOperationTimeout
	cfg.OpenFor = constants.DocReaderOpenFor
	return &Reader{
		client:  client,
		prompts: pm,
		opts:    opts,
		breaker: circuit.New(cfg, opts.Logger),
		costs:   NewCostTracker(),
		log:     opts.Logger.WithComponent("docreader"),
		limiter: newLimiter(opts.RPS),
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// SetRate changes the request rate limit; rps <= 0 removes it.
func (r *Reader) SetRate(rps float64) {
	r.mu.Lock()
	r.limiter = newLimiter(rps)
	r.mu.Unlock()
}

// SetModel switches the completion model for later calls.
func (r *Reader) SetModel(model string) {
	if model == "" {
		return
	}
	r.mu.Lock()
	r.opts.Model = model
	r.mu.Unlock()
}

// Costs returns accumulated usage.
func (r *Reader) Costs() CostStats { return r.costs.Stats() }

// Configured reports whether an API client is present.
func (r *Reader) Configured() bool { return r.client != nil }

// Extract reads the customer address from doc.
func (r *Reader) Extract(ctx context.Context, doc Document) (*Extraction, error) {
	const op = "docreader.Extract"
	if r.client == nil {
		return nil, errs.NewConfig(op, "OPENAI_API_KEY not configured", nil)
	}
	if len(doc.Data) == 0 {
		return nil, errs.NewValidation(op, "empty document", nil)
	}

	system, err := r.prompts.Render(prompts.AddressSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := r.userMessage(doc)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	limiter, model := r.limiter, r.opts.Model
	r.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, errs.NewExternal(op, "openai", "rate limit wait aborted", err)
	}

	var resp openai.ChatCompletionResponse
	err = r.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				user,
			},
			Temperature:    float32(r.opts.Temperature),
			MaxTokens:      r.opts.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		return err
	})
	if err != nil {
		mRequests.With("error").Inc()
		r.log.Warn("document extraction failed", logging.String("model", model), logging.Error(err))
		return nil, errs.NewExternal(op, "openai", "chat completion failed", err)
	}

	r.costs.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	mTokens.Inc(int64(resp.Usage.TotalTokens))
	if len(resp.Choices) == 0 {
		mRequests.With("empty").Inc()
		return nil, errs.NewExternal(op, "openai", "empty completion", nil)
	}

	ext, err := ParseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		mRequests.With("unparseable").Inc()
		r.log.Warn("unparseable extraction", logging.Error(err))
		return nil, errs.NewExternal(op, "openai", "unparseable extraction", err)
	}
	mRequests.With("success").Inc()
	return ext, nil
}

func (r *Reader) userMessage(doc Document) (openai.ChatCompletionMessage, error) {
	const op = "docreader.userMessage"
	mime := strings.ToLower(strings.TrimSpace(doc.MimeType))
	data := map[string]string{"Instructions": doc.Instructions, "Filename": doc.Filename}

	switch {
	case strings.HasPrefix(mime, "image/"):
		text, err := r.prompts.Render(prompts.AddressUser, data)
		if err != nil {
			return openai.ChatCompletionMessage{}, err
		}
		url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(doc.Data)
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailHigh}},
				{Type: openai.ChatMessagePartTypeText, Text: text},
			},
		}, nil
	case strings.HasPrefix(mime, "text/"), mime == "":
		data["Text"] = string(doc.Data)
		text, err := r.prompts.Render(prompts.AddressUser, data)
		if err != nil {
			return openai.ChatCompletionMessage{}, err
		}
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}, nil
	default:
		return openai.ChatCompletionMessage{}, errs.NewValidation(op,
			fmt.Sprintf("unsupported document type %q: send an image (PDF pages must be rasterized)", doc.MimeType), nil)
	}
}

// StripCodeFences removes a leading ```json or ``` fence and a trailing ```.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonText accepts a JSON string, number or null. Models sometimes write
// postal codes and house numbers as bare numbers.
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	switch {
	case string(b) == "null":
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = jsonText(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*t = jsonText(n.String())
	}
	return nil
}

func (t jsonText) String() string { return strings.TrimSpace(string(t)) }

type rawExtraction struct {
	DocumentType  jsonText `json:"tipo_documento"`
	ServiceName   jsonText `json:"nombre_servicio"`
	ServiceNumber jsonText `json:"numero_servicio"`
	Holder        jsonText `json:"titular"`
	Address       struct {
		Street         jsonText `json:"calle"`
		StreetNumber   jsonText `json:"numero_exterior"`
		InteriorNumber jsonText `json:"numero_interior"`
		Settlement     jsonText `json:"colonia"`
		Municipality   jsonText `json:"municipio"`
		State          jsonText `json:"estado"`
		PostalCode     jsonText `json:"codigo_postal"`
	} `json:"direccion_extraida"`
	FullAddress jsonText `json:"direccion_completa"`
}

// ParseExtraction decodes a model reply. When direccion_completa is missing
// the full address is assembled from the structured fields.
func ParseExtraction(reply string) (*Extraction, error) {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &raw); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	a := raw.Address
	ext := &Extraction{
		DocumentType:  raw.DocumentType.String(),
		ServiceName:   raw.ServiceName.String(),
		ServiceNumber: raw.ServiceNumber.String(),
		Holder:        raw.Holder.String(),
		Address: models.ExtractedAddress{
			FullAddress:    raw.FullAddress.String(),
			Street:         a.Street.String(),
			StreetNumber:   a.StreetNumber.String(),
			InteriorNumber: a.InteriorNumber.String(),
			Settlement:     a.Settlement.String(),
			Municipality:   a.Municipality.String(),
			State:          a.State.String(),
			PostalCode:     a.PostalCode.String(),
		},
	}
	if ext.Address.FullAddress == "" {
		ext.Address.FullAddress = ComposeFullAddress(ext.Address)
	}
	if ext.Address.FullAddress == "" {
		return nil, fmt.Errorf("no address in extraction")
	}
	return ext, nil
}

// ComposeFullAddress formats structured fields the way the extraction prompt
// asks for: "Calle #Num, Colonia X, CP 00000, Municipio, Estado, México".
func ComposeFullAddress(a models.ExtractedAddress) string {
	var parts []string
	street := a.Street
	if a.StreetNumber != "" {
		street = strings.TrimSpace(street + " #" + a.StreetNumber)
	}
	if street != "" {
		parts = append(parts, street)
	}
	if a.Settlement != "" {
		parts = append(parts, "Colonia "+a.Settlement)
	}
	if a.PostalCode != "" {
		parts = append(parts, "CP "+a.PostalCode)
	}
	if a.Municipality != "" {
		parts = append(parts, a.Municipality)
	}
	if a.State != "" {
		parts = append(parts, a.State)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(append(parts, "México"), ", ")
}
