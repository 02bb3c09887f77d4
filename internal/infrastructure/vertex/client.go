// Package vertex talks to the Vertex AI Discovery Engine serving config that
// answers questions over the lab notebook corpus.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molecule-search/internal/domain/answer"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	DefaultEndpoint      = "https://discoveryengine.googleapis.com/v1alpha"
	DefaultLanguageCode  = "en-GB"
	DefaultPageSize      = 10
	DefaultStreamTimeout = 120 * time.Second
	DefaultAnswerTimeout = 60 * time.Second

	// FallbackAnswer is returned when neither the answer nor the search
	// summary carries text.
	FallbackAnswer = "I couldn't find a relevant answer to your question."

	maxErrorBody = 64 << 10
)

// Endpoint names a serving config method, also used as a metrics label.
type Endpoint string

const (
	EndpointStreamAnswer Endpoint = "streamAnswer"
	EndpointSearch       Endpoint = "search"
	EndpointAnswer       Endpoint = "answer"
)

// Config identifies the engine.
type Config struct {
	ProjectID     string
	Location      string
	Collection    string
	EngineID      string
	Endpoint      string
	LanguageCode  string
	PageSize      int
	StreamTimeout time.Duration
	AnswerTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.LanguageCode == "" {
		c.LanguageCode = DefaultLanguageCode
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = DefaultStreamTimeout
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = DefaultAnswerTimeout
	}
}

func (c Config) enginePath() string {
	return fmt.Sprintf("projects/%s/locations/%s/collections/%s/engines/%s",
		c.ProjectID, c.Location, c.Collection, c.EngineID)
}

// ServingConfigURL is the base URL the :streamAnswer, :search and :answer
// methods are appended to.
func (c Config) ServingConfigURL() string {
	return c.Endpoint + "/" + c.enginePath() + "/servingConfigs/default_search"
}

// SessionPath names an existing session, or asks for a new one when id is
// empty.
func (c Config) SessionPath(id string) string {
	if id == "" {
		id = "-"
	}
	return c.enginePath() + "/sessions/" + id
}

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

// LatencyObserver receives the duration of every upstream call.
type LatencyObserver func(endpoint Endpoint, d time.Duration, err error)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client. Timeouts are applied per
// call through the request context, so the client itself should have none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLatencyObserver registers a callback for upstream call latency.
func WithLatencyObserver(obs LatencyObserver) ClientOption {
	return func(c *Client) {
		c.observe = obs
	}
}

// Client calls the engine's default_search serving config.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenProvider
	logger     logging.Logger
	observe    LatencyObserver
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, tokens TokenProvider, log logging.Logger, opts ...ClientOption) (*Client, error) {
	if cfg.ProjectID == "" || cfg.EngineID == "" || cfg.Location == "" || cfg.Collection == "" {
		return nil, errors.New(errors.ErrCodeUpstreamConfig,
			"vertex ai is not configured: project_id, location, collection and engine_id are required")
	}
	if tokens == nil {
		return nil, errors.New(errors.ErrCodeUpstreamConfig, "vertex ai token provider is required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		tokens:     tokens,
		logger:     log.Named("vertex"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// ─────────────────────────────────────────────────────────────────────────────
// Request bodies
// ─────────────────────────────────────────────────────────────────────────────

type queryInput struct {
	Text    string `json:"text"`
	QueryID string `json:"queryId,omitempty"`
}

type relatedQuestionsSpec struct {
	Enable bool `json:"enable"`
}

type answerGenerationSpec struct {
	IgnoreAdversarialQuery      bool `json:"ignoreAdversarialQuery"`
	IgnoreNonAnswerSeekingQuery bool `json:"ignoreNonAnswerSeekingQuery"`
	IgnoreLowRelevantContent    bool `json:"ignoreLowRelevantContent"`
	IncludeCitations            bool `json:"includeCitations"`
}

type answerRequest struct {
	Query                queryInput           `json:"query"`
	Session              string               `json:"session"`
	RelatedQuestionsSpec relatedQuestionsSpec `json:"relatedQuestionsSpec"`
	AnswerGenerationSpec answerGenerationSpec `json:"answerGenerationSpec"`
}

func newAnswerRequest(query, queryID, session string) answerRequest {
	return answerRequest{
		Query:                queryInput{Text: query, QueryID: queryID},
		Session:              session,
		RelatedQuestionsSpec: relatedQuestionsSpec{Enable: true},
		AnswerGenerationSpec: answerGenerationSpec{
			IgnoreAdversarialQuery:      true,
			IgnoreNonAnswerSeekingQuery: false,
			IgnoreLowRelevantContent:    true,
			IncludeCitations:            true,
		},
	}
}

type searchRequest struct {
	Query              string `json:"query"`
	PageSize           int    `json:"pageSize"`
	QueryExpansionSpec struct {
		Condition string `json:"condition"`
	} `json:"queryExpansionSpec"`
	SpellCorrectionSpec struct {
		Mode string `json:"mode"`
	} `json:"spellCorrectionSpec"`
	LanguageCode      string `json:"languageCode"`
	ContentSearchSpec struct {
		SnippetSpec struct {
			ReturnSnippet bool `json:"returnSnippet"`
		} `json:"snippetSpec"`
	} `json:"contentSearchSpec"`
	Session string `json:"session"`
}

func (c *Client) newSearchRequest(query, session string) searchRequest {
	var r searchRequest
	r.Query = query
	r.PageSize = c.cfg.PageSize
	r.QueryExpansionSpec.Condition = "AUTO"
	r.SpellCorrectionSpec.Mode = "AUTO"
	r.LanguageCode = c.cfg.LanguageCode
	r.ContentSearchSpec.SnippetSpec.ReturnSnippet = true
	r.Session = session
	return r
}

type searchResponse struct {
	QueryID string              `json:"queryId"`
	Session *answer.WireSession `json:"session"`
	Summary *struct {
		SummaryText string `json:"summaryText"`
	} `json:"summary"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Calls
// ─────────────────────────────────────────────────────────────────────────────

// StreamAnswer opens a :streamAnswer call and returns the raw body, which is
// a sequence of JSON answer snapshots for answer.NewStream. StreamTimeout
// bounds the whole exchange; closing the body releases it.
func (c *Client) StreamAnswer(ctx context.Context, query, sessionID string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	start := time.Now()

	resp, err := c.post(ctx, EndpointStreamAnswer, newAnswerRequest(query, "", c.cfg.SessionPath(sessionID)))
	if err != nil {
		cancel()
		c.record(EndpointStreamAnswer, start, err)
		return nil, err
	}
	c.record(EndpointStreamAnswer, start, nil)
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// AnswerResult is the outcome of the non-streaming flow.
type AnswerResult struct {
	Answer           string             `json:"answer"`
	SessionID        string             `json:"sessionId"`
	QueryID          string             `json:"queryId,omitempty"`
	RelatedQuestions []string           `json:"relatedQuestions"`
	References       []answer.Reference `json:"references"`
}

// SearchAndAnswer runs :search to obtain a query id and session, then
// :answer against them.
func (c *Client) SearchAndAnswer(ctx context.Context, query, sessionID string) (*AnswerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AnswerTimeout)
	defer cancel()

	var search searchResponse
	if err := c.postJSON(ctx, EndpointSearch, c.newSearchRequest(query, c.cfg.SessionPath(sessionID)), &search); err != nil {
		return nil, err
	}
	searchSession := ""
	if search.Session != nil {
		searchSession = answer.SessionIDFromName(search.Session.Name)
	}

	var resp answer.Response
	req := newAnswerRequest(query, search.QueryID, c.cfg.SessionPath(searchSession))
	if err := c.postJSON(ctx, EndpointAnswer, req, &resp); err != nil {
		return nil, err
	}
	snap := resp.Snapshot()

	text := snap.AnswerText
	if text == "" && search.Summary != nil {
		text = search.Summary.SummaryText
	}
	if text == "" {
		text = FallbackAnswer
	}

	result := &AnswerResult{
		Answer:           CleanAnswerText(text),
		SessionID:        snap.SessionID,
		QueryID:          search.QueryID,
		RelatedQuestions: snap.RelatedQuestions,
		References:       snap.References,
	}
	if result.SessionID == "" {
		result.SessionID = searchSession
	}
	if result.RelatedQuestions == nil {
		result.RelatedQuestions = []string{}
	}
	if result.References == nil {
		result.References = []answer.Reference{}
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, ep Endpoint, body, out any) error {
	start := time.Now()
	resp, err := c.post(ctx, ep, body)
	if err != nil {
		c.record(ep, start, err)
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = errors.Wrapf(err, errors.ErrCodeUpstreamDecode, "failed to decode vertex ai %s response", ep)
		c.record(ep, start, err)
		return err
	}
	c.record(ep, start, nil)
	return nil
}

// post sends body and returns a 200 response. Any other status is read and
// converted into an UPSTREAM_001 error.
func (c *Client) post(ctx context.Context, ep Endpoint, body any) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode vertex ai request")
	}

	url := c.cfg.ServingConfigURL() + ":" + string(ep)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamConfig, "failed to build vertex ai request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("vertex ai request failed",
			logging.String("endpoint", string(ep)),
			logging.String("request_id", requestID),
			logging.Err(err),
		)
		return nil, errors.Wrapf(err, errors.ErrCodeUpstreamTransport, "vertex ai %s request failed", ep)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("vertex ai returned an error status",
			logging.String("endpoint", string(ep)),
			logging.String("request_id", requestID),
			logging.Int("status", resp.StatusCode),
		)
		return nil, errors.Upstream(resp.StatusCode, string(raw))
	}

	c.logger.Debug("vertex ai call accepted",
		logging.String("endpoint", string(ep)),
		logging.String("request_id", requestID),
	)
	return resp, nil
}

func (c *Client) record(ep Endpoint, start time.Time, err error) {
	if c.observe != nil {
		c.observe(ep, time.Since(start), err)
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
