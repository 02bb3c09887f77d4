package answer

import (
	"strings"
	"unicode/utf8"
)

// ReconcilerStats counts what a Reconciler has done.
type ReconcilerStats struct {
	Snapshots   int
	Chunks      int
	Replaces    int
	Regressions int
}

// Reconciler converts cumulative snapshots into incremental chunks.
//
// For every emitted chunk the invariant holds that the concatenation of
// chunk texts since the last replace equals the latest text emitted. A
// STREAMING snapshot that does not extend what was emitted is absorbed; only
// the final SUCCEEDED snapshot may rewrite text already shown.
type Reconciler struct {
	lastEmitted      string
	sessionID        string
	relatedQuestions []string
	references       []Reference
	finished         bool
	stats            ReconcilerStats
}

// NewReconciler returns a Reconciler with nothing emitted.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Apply folds one snapshot in and returns the chunks it produces (zero or
// one). Snapshots without answer text only contribute metadata. Calls after
// Finish return nil.
func (r *Reconciler) Apply(s Snapshot) []Event {
	if r.finished {
		return nil
	}
	r.stats.Snapshots++
	r.absorbMetadata(s)
	if s.AnswerText == "" {
		return nil
	}

	var ev *Event
	switch s.State {
	case StateSucceeded:
		ev = r.applyFinal(s.AnswerText)
	case StateStreaming:
		ev = r.applyStreaming(s.AnswerText)
	}
	if ev == nil {
		return nil
	}
	r.stats.Chunks++
	if ev.Replace {
		r.stats.Replaces++
	}
	return []Event{*ev}
}

func (r *Reconciler) applyStreaming(text string) *Event {
	if r.lastEmitted == "" {
		r.lastEmitted = text
		ev := ChunkEvent(text, false)
		return &ev
	}
	if extends(text, r.lastEmitted) {
		ev := ChunkEvent(text[len(r.lastEmitted):], false)
		r.lastEmitted = text
		return &ev
	}
	if text != r.lastEmitted {
		r.stats.Regressions++
	}
	return nil
}

func (r *Reconciler) applyFinal(text string) *Event {
	if extends(text, r.lastEmitted) {
		ev := ChunkEvent(text[len(r.lastEmitted):], false)
		r.lastEmitted = text
		return &ev
	}
	if text == r.lastEmitted {
		return nil
	}
	r.lastEmitted = text
	ev := ChunkEvent(text, true)
	return &ev
}

// extends reports whether text strictly extends prev.
func extends(text, prev string) bool {
	return strings.HasPrefix(text, prev) &&
		utf8.RuneCountInString(text) > utf8.RuneCountInString(prev)
}

// absorbMetadata keeps the latest non-empty value of each metadata field.
func (r *Reconciler) absorbMetadata(s Snapshot) {
	if len(s.RelatedQuestions) > 0 {
		r.relatedQuestions = s.RelatedQuestions
	}
	if len(s.References) > 0 {
		r.references = s.References
	}
	if s.SessionID != "" {
		r.sessionID = s.SessionID
	}
}

// Finish returns the metadata event followed by done. It yields them once;
// later calls return nil.
func (r *Reconciler) Finish() []Event {
	if r.finished {
		return nil
	}
	r.finished = true
	return []Event{
		MetadataEvent(r.Metadata()),
		DoneEvent(),
	}
}

// Metadata returns the metadata buffered so far.
func (r *Reconciler) Metadata() Metadata {
	return Metadata{
		SessionID:        r.sessionID,
		RelatedQuestions: append([]string(nil), r.relatedQuestions...),
		References:       append([]Reference(nil), r.references...),
	}
}

// Text returns everything the consumer currently displays.
func (r *Reconciler) Text() string {
	return r.lastEmitted
}

// Stats returns a copy of the counters.
func (r *Reconciler) Stats() ReconcilerStats {
	return r.stats
}
