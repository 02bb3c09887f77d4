package answer

import (
	"encoding/json"
	"strings"

	"github.com/turtacn/molecule-search/pkg/errors"
)

// State is the generation state reported with each snapshot.
type State string

const (
	StateUnspecified State = ""
	StateStreaming   State = "STREAMING"
	StateSucceeded   State = "SUCCEEDED"
	StateFailed      State = "FAILED"
)

// ErrMalformedObject marks an object that is not a decodable answer snapshot.
var ErrMalformedObject = errors.New(errors.CodeUpstreamDecode, "malformed answer object")

// Snapshot is one cumulative view of the answer.
type Snapshot struct {
	State            State
	AnswerText       string
	QueryID          string
	SessionID        string
	RelatedQuestions []string
	References       []Reference

	// UpstreamError is set when the object is an in-band error report
	// instead of an answer.
	UpstreamError *UpstreamError
}

// UpstreamError is the {"error": {...}} body Google APIs send on failure.
type UpstreamError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire shapes
// ─────────────────────────────────────────────────────────────────────────────

// Response is the wire shape shared by streamAnswer objects and the unary
// :answer response.
type Response struct {
	Answer  *WireAnswer    `json:"answer"`
	Session *WireSession   `json:"session"`
	Error   *UpstreamError `json:"error"`
}

// WireAnswer is the "answer" member of a Response.
type WireAnswer struct {
	State            string          `json:"state"`
	AnswerText       string          `json:"answerText"`
	RelatedQuestions []string        `json:"relatedQuestions"`
	References       []WireReference `json:"references"`
}

// WireSession is the "session" member of a Response.
type WireSession struct {
	Name string `json:"name"`
}

// WireReference carries either an unstructured document or a chunk.
type WireReference struct {
	UnstructuredDocumentInfo *struct {
		Title         string `json:"title"`
		URI           string `json:"uri"`
		ChunkContents []struct {
			Content        string `json:"content"`
			PageIdentifier string `json:"pageIdentifier"`
		} `json:"chunkContents"`
	} `json:"unstructuredDocumentInfo"`
	ChunkInfo *struct {
		Content          string `json:"content"`
		DocumentMetadata struct {
			Title          string `json:"title"`
			URI            string `json:"uri"`
			PageIdentifier string `json:"pageIdentifier"`
		} `json:"documentMetadata"`
	} `json:"chunkInfo"`
}

// Reference flattens w. ok is false when w has neither shape.
func (w WireReference) Reference() (Reference, bool) {
	switch {
	case w.UnstructuredDocumentInfo != nil:
		doc := w.UnstructuredDocumentInfo
		ref := Reference{Title: doc.Title, URI: doc.URI}
		if len(doc.ChunkContents) > 0 {
			ref.Content = doc.ChunkContents[0].Content
			ref.PageIdentifier = doc.ChunkContents[0].PageIdentifier
		}
		return ref, true
	case w.ChunkInfo != nil:
		meta := w.ChunkInfo.DocumentMetadata
		return Reference{
			Title:          meta.Title,
			URI:            meta.URI,
			Content:        w.ChunkInfo.Content,
			PageIdentifier: meta.PageIdentifier,
		}, true
	}
	return Reference{}, false
}

// References flattens every recognisable reference in refs.
func References(refs []WireReference) []Reference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]Reference, 0, len(refs))
	for _, w := range refs {
		if ref, ok := w.Reference(); ok {
			out = append(out, ref)
		}
	}
	return out
}

// SessionIDFromName returns the id segment of a
// "projects/.../sessions/{id}" resource name, or "" when absent.
func SessionIDFromName(name string) string {
	_, after, found := strings.Cut(name, "/sessions/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "/")
	return id
}

// Snapshot converts a decoded Response.
func (r Response) Snapshot() Snapshot {
	var s Snapshot
	if r.Error != nil {
		s.UpstreamError = r.Error
	}
	if r.Answer != nil {
		s.State = State(r.Answer.State)
		s.AnswerText = r.Answer.AnswerText
		s.RelatedQuestions = r.Answer.RelatedQuestions
		s.References = References(r.Answer.References)
	}
	if r.Session != nil {
		s.SessionID = SessionIDFromName(r.Session.Name)
	}
	return s
}

// DecodeSnapshot parses one object produced by a Reassembler. Any decode
// failure wraps ErrMalformedObject.
func DecodeSnapshot(raw string) (Snapshot, error) {
	var r Response
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Snapshot{}, ErrMalformedObject.WithCause(err)
	}
	return r.Snapshot(), nil
}

// IsMalformed reports whether err came from DecodeSnapshot.
func IsMalformed(err error) bool {
	var ae *errors.AppError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Code == ErrMalformedObject.Code && ae.Message == ErrMalformedObject.Message
}
