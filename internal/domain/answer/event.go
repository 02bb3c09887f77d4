// Package answer turns the raw body of a Discovery Engine streamAnswer call
// into display events. The upstream sends back-to-back JSON objects, each
// restating the whole answer so far; a Reassembler splits the bytes into
// objects and a Reconciler converts the cumulative snapshots into
// incremental chunks, one metadata event and a final done event.
package answer

// EventType discriminates the Event union.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventMetadata EventType = "metadata"
	EventDone     EventType = "done"
)

// Reference is one citation attached to an answer.
type Reference struct {
	Title          string `json:"title"`
	URI            string `json:"uri"`
	Content        string `json:"content"`
	PageIdentifier string `json:"pageIdentifier,omitempty"`
}

// Metadata is emitted once per stream, after all chunks.
type Metadata struct {
	SessionID        string      `json:"sessionId"`
	RelatedQuestions []string    `json:"relatedQuestions"`
	References       []Reference `json:"references"`
}

// Event is a tagged union. Text and Replace are set for EventChunk, Metadata
// for EventMetadata; EventDone carries nothing.
type Event struct {
	Type     EventType
	Text     string
	Replace  bool
	Metadata *Metadata
}

// ChunkEvent builds a chunk. Replace means the consumer discards everything
// shown so far for this message and renders text instead.
func ChunkEvent(text string, replace bool) Event {
	return Event{Type: EventChunk, Text: text, Replace: replace}
}

// MetadataEvent builds a metadata event. Nil slices are normalised to empty
// so the wire form always carries arrays.
func MetadataEvent(m Metadata) Event {
	if m.RelatedQuestions == nil {
		m.RelatedQuestions = []string{}
	}
	if m.References == nil {
		m.References = []Reference{}
	}
	return Event{Type: EventMetadata, Metadata: &m}
}

// DoneEvent builds the terminal event.
func DoneEvent() Event {
	return Event{Type: EventDone}
}

// IsTerminal reports whether e is the done event.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone
}
