// Package chat answers user prompts through Vertex AI Discovery Engine,
// optionally enriched with what the notebook database knows about an attached
// molecule.
package chat

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/molecule-search/internal/domain/answer"
	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molecule-search/internal/infrastructure/vertex"
	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	defaultLookupTimeout  = 2 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Upstream is the subset of *vertex.Client the service needs.
type Upstream interface {
	StreamAnswer(ctx context.Context, query, sessionID string) (io.ReadCloser, error)
	SearchAndAnswer(ctx context.Context, query, sessionID string) (*vertex.AnswerResult, error)
}

// Service defines chat operations.
type Service interface {
	// Stream starts a streamed answer. The caller must Close the result.
	Stream(ctx context.Context, req SendMessageRequest) (*ChatStream, error)
	// Answer runs the non-streaming search-then-answer flow.
	Answer(ctx context.Context, req SendMessageRequest) (*vertex.AnswerResult, error)
}

// Option configures the service.
type Option func(*serviceImpl)

// WithMoleculeLookup enables query enrichment from the database.
func WithMoleculeLookup(molecules molecule.Repository, notebooks notebook.Repository) Option {
	return func(s *serviceImpl) {
		s.molecules = molecules
		s.notebooks = notebooks
	}
}

// WithAuditPublisher publishes a chat.completed event after every stream.
func WithAuditPublisher(p kafka.Publisher, topic string) Option {
	return func(s *serviceImpl) {
		s.publisher = p
		if topic != "" {
			s.topic = topic
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

// WithLookupTimeout bounds the molecule lookup done before each query.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *serviceImpl) { s.lookupTimeout = d }
}

// WithStreamOptions forwards options to every answer.Stream.
func WithStreamOptions(opts ...answer.Option) Option {
	return func(s *serviceImpl) { s.streamOpts = append(s.streamOpts, opts...) }
}

type serviceImpl struct {
	upstream      Upstream
	molecules     molecule.Repository
	notebooks     notebook.Repository
	publisher     kafka.Publisher
	topic         string
	metrics       *prometheus.AppMetrics
	logger        logging.Logger
	lookupTimeout time.Duration
	streamOpts    []answer.Option
	now           func() time.Time
}

// NewService creates a chat service.
func NewService(upstream Upstream, log logging.Logger, opts ...Option) Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &serviceImpl{
		upstream:      upstream,
		publisher:     kafka.NoopPublisher{},
		topic:         kafka.TopicChatCompleted,
		metrics:       prometheus.NewNoopMetrics(),
		logger:        log.Named("chat"),
		lookupTimeout: defaultLookupTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streamOpts = append([]answer.Option{answer.WithLogger(s.logger)}, s.streamOpts...)
	return s
}

func (s *serviceImpl) Stream(ctx context.Context, req SendMessageRequest) (*ChatStream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	query := BuildQuery(req.Prompt, req.SMILES, s.moleculeContext(ctx, req.SMILES))

	s.logger.Info("processing chat request",
		logging.String("session_id", req.SessionID),
		logging.Bool("has_smiles", req.SMILES != ""),
		logging.Int("query_chars", len(query)),
	)

	start := s.now()
	s.metrics.ChatActiveStreams.WithLabelValues("stream").Inc()
	body, err := s.upstream.StreamAnswer(ctx, query, req.SessionID)
	if err != nil {
		s.metrics.ChatActiveStreams.WithLabelValues("stream").Dec()
		s.logger.Error("failed to open answer stream", logging.Err(err))
		s.metrics.RecordChatStream(prometheus.ChatStreamSummary{Status: StatusFailed, Duration: s.now().Sub(start)})
		return nil, err
	}
	return &ChatStream{
		svc:    s,
		req:    req,
		body:   body,
		stream: answer.NewStream(body, s.streamOpts...),
		start:  start,
	}, nil
}

func (s *serviceImpl) Answer(ctx context.Context, req SendMessageRequest) (*vertex.AnswerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	query := BuildQuery(req.Prompt, req.SMILES, s.moleculeContext(ctx, req.SMILES))

	start := s.now()
	res, err := s.upstream.SearchAndAnswer(ctx, query, req.SessionID)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		s.logger.Error("search and answer failed", logging.Err(err))
	}
	s.metrics.RecordUpstream("answer", err, s.now().Sub(start))

	sessionID := req.SessionID
	if res != nil && res.SessionID != "" {
		sessionID = res.SessionID
	}
	s.publish(kafka.ChatCompletedPayload{
		SessionID:   sessionID,
		PromptChars: len([]rune(req.Prompt)),
		SMILES:      req.SMILES,
		DurationMs:  s.now().Sub(start).Milliseconds(),
		Status:      status,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// moleculeContext is best-effort: a missing molecule or a database failure
// leaves the query with the bare SMILES context.
func (s *serviceImpl) moleculeContext(ctx context.Context, smiles string) *MoleculeContext {
	if smiles == "" || s.molecules == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	mol, err := s.molecules.GetBySMILES(ctx, smiles)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.logger.Warn("molecule lookup failed", logging.String("smiles", smiles), logging.Err(err))
		}
		return nil
	}
	mc := &MoleculeContext{Molecule: mol}
	if s.notebooks != nil {
		nbs, err := s.notebooks.ListWithMolecule(ctx, smiles)
		if err != nil {
			s.logger.Warn("notebook lookup failed", logging.String("smiles", smiles), logging.Err(err))
		} else {
			mc.Notebooks = nbs
		}
	}
	return mc
}

func (s *serviceImpl) publish(p kafka.ChatCompletedPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	if err := kafka.PublishEvent(ctx, s.publisher, s.topic, kafka.EventChatCompleted, p.SessionID, p); err != nil {
		s.logger.Warn("failed to publish chat audit event", logging.Err(err))
	}
}
