package answer

import (
	"context"
	"io"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// Stats summarises one stream.
type Stats struct {
	Objects       int
	Malformed     int
	Chunks        int
	Replaces      int
	Regressions   int
	DroppedBytes  int
	UpstreamError bool
}

// Stream pulls display events out of a streamAnswer response body.
//
// Next yields chunks as snapshots arrive and, once the body reaches EOF,
// exactly one metadata event followed by done; after that it returns io.EOF.
// A transport failure or cancelled context ends the stream with that error
// and no done event. Not safe for concurrent use.
type Stream struct {
	reassembler *Reassembler
	reconciler  *Reconciler
	logger      logging.Logger

	pending   []Event
	finished  bool
	err       error
	objects   int
	malformed int
	upstream  bool
}

// NewStream wraps body. The caller still owns closing it.
func NewStream(body io.Reader, opts ...Option) *Stream {
	o := buildOptions(opts)
	return &Stream{
		reassembler: NewReassembler(body, opts...),
		reconciler:  NewReconciler(),
		logger:      o.logger,
	}
}

// Next returns the next event.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.err != nil {
			return Event{}, s.err
		}
		if s.finished {
			s.err = io.EOF
			continue
		}

		raw, err := s.reassembler.Next(ctx)
		if err == io.EOF {
			s.finished = true
			s.pending = append(s.pending, s.reconciler.Finish()...)
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			s.err = err
			return Event{}, err
		}

		s.objects++
		snap, err := DecodeSnapshot(raw)
		if err != nil {
			s.malformed++
			s.logger.Warn("skipping malformed answer object",
				logging.Err(err),
				logging.Int("bytes", len(raw)),
			)
			continue
		}
		if ue := snap.UpstreamError; ue != nil {
			s.upstream = true
			s.err = errors.Newf(errors.CodeUpstreamStatus, "vertex ai reported error %d", ue.Code).
				WithDetail(ue.Status + ": " + ue.Message)
			return Event{}, s.err
		}

		before := s.reconciler.Stats().Regressions
		s.pending = append(s.pending, s.reconciler.Apply(snap)...)
		if s.reconciler.Stats().Regressions > before {
			s.logger.Warn("absorbed non-extending streaming snapshot, upstream may be reordering",
				logging.Int("emitted_runes", len([]rune(s.reconciler.Text()))),
				logging.Int("snapshot_runes", len([]rune(snap.AnswerText))),
			)
		}
	}
}

// Text returns the answer as currently displayed.
func (s *Stream) Text() string {
	return s.reconciler.Text()
}

// Metadata returns the metadata buffered so far.
func (s *Stream) Metadata() Metadata {
	return s.reconciler.Metadata()
}

// Stats returns counters for the stream so far.
func (s *Stream) Stats() Stats {
	rs := s.reconciler.Stats()
	return Stats{
		Objects:       s.objects,
		Malformed:     s.malformed,
		Chunks:        rs.Chunks,
		Replaces:      rs.Replaces,
		Regressions:   rs.Regressions,
		DroppedBytes:  s.reassembler.DroppedBytes(),
		UpstreamError: s.upstream,
	}
}

// Collect drains s and returns every event up to and including done.
func Collect(ctx context.Context, s *Stream) ([]Event, error) {
	var events []Event
	for {
		ev, err := s.Next(ctx)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
