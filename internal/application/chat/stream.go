package chat

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/turtacn/molecule-search/internal/domain/answer"
	"github.com/turtacn/molecule-search/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molecule-search/internal/infrastructure/vertex"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// Stream outcomes, used as the metrics label and the audit status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusAborted   = "aborted"
)

// ChatStream yields the events of one streamed answer. Close must be called
// exactly once the caller stops reading; it releases the upstream request
// and reports the outcome.
type ChatStream struct {
	svc    *serviceImpl
	req    SendMessageRequest
	body   io.ReadCloser
	stream *answer.Stream
	start  time.Time

	sessionID string
	status    string
	err       error
	once      sync.Once
}

// Next returns the next event, or io.EOF after the done event.
func (cs *ChatStream) Next(ctx context.Context) (answer.Event, error) {
	ev, err := cs.stream.Next(ctx)
	switch {
	case err == nil:
		if ev.Type == answer.EventMetadata && ev.Metadata != nil {
			cs.sessionID = ev.Metadata.SessionID
		}
		if ev.IsTerminal() {
			cs.status = StatusCompleted
		}
	case err == io.EOF:
		cs.status = StatusCompleted
	case stderrors.Is(err, context.Canceled):
		cs.status = StatusCancelled
		cs.err = err
	default:
		cs.status = StatusFailed
		cs.err = err
	}
	return ev, err
}

// Text is the answer as displayed so far, cleaned of trailing metadata.
func (cs *ChatStream) Text() string {
	return vertex.CleanAnswerText(cs.stream.Text())
}

func (cs *ChatStream) Stats() answer.Stats {
	return cs.stream.Stats()
}

// Err is the error that ended the stream, if any.
func (cs *ChatStream) Err() error {
	return cs.err
}

// Close closes the upstream body, records metrics and publishes the audit
// event. Later calls are no-ops.
func (cs *ChatStream) Close() error {
	var closeErr error
	cs.once.Do(func() {
		closeErr = cs.body.Close()
		cs.finish()
	})
	return closeErr
}

func (cs *ChatStream) finish() {
	s := cs.svc
	s.metrics.ChatActiveStreams.WithLabelValues("stream").Dec()

	status := cs.status
	if status == "" {
		status = StatusAborted
	}
	elapsed := s.now().Sub(cs.start)
	st := cs.stream.Stats()

	s.metrics.RecordChatStream(prometheus.ChatStreamSummary{
		Status:    status,
		Duration:  elapsed,
		Chunks:    st.Chunks,
		Replaces:  st.Replaces,
		Malformed: st.Malformed,
	})

	fields := []logging.Field{
		logging.String("status", status),
		logging.String("session_id", cs.sessionID),
		logging.Int("objects", st.Objects),
		logging.Int("chunks", st.Chunks),
		logging.Int("replaces", st.Replaces),
		logging.Int("malformed", st.Malformed),
		logging.Duration("duration", elapsed),
	}
	if cs.err != nil {
		fields = append(fields, logging.Err(cs.err))
	}
	if status == StatusFailed {
		s.logger.Error("chat stream failed", fields...)
	} else {
		s.logger.Info("chat stream finished", fields...)
	}

	sessionID := cs.sessionID
	if sessionID == "" {
		sessionID = cs.req.SessionID
	}
	s.publish(kafka.ChatCompletedPayload{
		SessionID:   sessionID,
		PromptChars: len([]rune(cs.req.Prompt)),
		SMILES:      cs.req.SMILES,
		Chunks:      st.Chunks,
		Replaced:    st.Replaces,
		DurationMs:  elapsed.Milliseconds(),
		Status:      status,
	})
}

// ErrorMessage renders err the way it is shown to chat users.
func ErrorMessage(err error) string {
	msg := err.Error()
	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		msg = ae.Message
		if ae.Detail != "" {
			msg += ": " + ae.Detail
		}
	}
	return "I encountered an error while processing your request: " + msg + ". Please try again."
}
