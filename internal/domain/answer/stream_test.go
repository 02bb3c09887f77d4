package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/molecule-search/pkg/errors"
)

func snapshotJSON(state, text string) string {
	return fmt.Sprintf(`{"answer":{"state":%q,"answerText":%q}}`, state, text)
}

const sessionObject = `{"session":{"name":"projects/p/locations/global/collections/default_collection/engines/e/sessions/555"},` +
	`"answer":{"state":"SUCCEEDED","answerText":"Hello world.","relatedQuestions":["What next?"],` +
	`"references":[{"unstructuredDocumentInfo":{"title":"NB-1","uri":"gs://b/NB-1.pdf","chunkContents":[{"content":"c1"}]}}]}}`

func TestStream_EndToEnd(t *testing.T) {
	body := "[" + snapshotJSON("STREAMING", "Hello") + ",\n" +
		snapshotJSON("STREAMING", "Hello wor") + ",\n" +
		sessionObject + "]"

	readers := map[string]io.Reader{
		"whole":      strings.NewReader(body),
		"one byte":   iotest.OneByteReader(strings.NewReader(body)),
		"half reads": iotest.HalfReader(strings.NewReader(body)),
	}
	for name, r := range readers {
		r := r
		t.Run(name, func(t *testing.T) {
			s := NewStream(r, WithReadSize(16))
			events, err := Collect(context.Background(), s)
			require.NoError(t, err)

			assert.Equal(t, []Event{
				ChunkEvent("Hello", false),
				ChunkEvent(" wor", false),
				ChunkEvent("ld.", false),
				MetadataEvent(Metadata{
					SessionID:        "555",
					RelatedQuestions: []string{"What next?"},
					References:       []Reference{{Title: "NB-1", URI: "gs://b/NB-1.pdf", Content: "c1"}},
				}),
				DoneEvent(),
			}, events)

			st := s.Stats()
			assert.Equal(t, 3, st.Objects)
			assert.Equal(t, 3, st.Chunks)
			assert.Zero(t, st.Malformed)
			assert.Equal(t, "Hello world.", s.Text())
		})
	}
}

func TestStream_ReplaceScenario(t *testing.T) {
	body := snapshotJSON("STREAMING", "Draft answer") + snapshotJSON("SUCCEEDED", "Final answer")
	events, err := Collect(context.Background(), NewStream(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Equal(t, []Event{
		ChunkEvent("Draft answer", false),
		ChunkEvent("Final answer", true),
		MetadataEvent(Metadata{}),
		DoneEvent(),
	}, events)
}

func TestStream_MetadataOnlyTrailerKeepsText(t *testing.T) {
	body := snapshotJSON("STREAMING", "Benzene is aromatic.") +
		`{"answer":{"state":"SUCCEEDED","relatedQuestions":["Why?"]},` +
		`"session":{"name":"projects/p/locations/global/collections/c/engines/e/sessions/42"}}`
	events, err := Collect(context.Background(), NewStream(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Equal(t, []Event{
		ChunkEvent("Benzene is aromatic.", false),
		MetadataEvent(Metadata{SessionID: "42", RelatedQuestions: []string{"Why?"}}),
		DoneEvent(),
	}, events)
}

func TestStream_EmptyBodyStillFinishes(t *testing.T) {
	events, err := Collect(context.Background(), NewStream(strings.NewReader("")))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventMetadata, events[0].Type)
	assert.Equal(t, []string{}, events[0].Metadata.RelatedQuestions)
	assert.Equal(t, []Reference{}, events[0].Metadata.References)
	assert.True(t, events[1].IsTerminal())
}

func TestStream_EOFAfterDone(t *testing.T) {
	s := NewStream(strings.NewReader(snapshotJSON("SUCCEEDED", "x")))
	_, err := Collect(context.Background(), s)
	require.NoError(t, err)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_MalformedObjectSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	body := snapshotJSON("STREAMING", "ab") + `{"answer":"not an object"}` + snapshotJSON("SUCCEEDED", "abc")

	s := NewStream(strings.NewReader(body), WithLogger(logging.NewLoggerFromCore(core)))
	events, err := Collect(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "abc", displayed(events))
	assert.Equal(t, 1, s.Stats().Malformed)
	assert.Equal(t, 3, s.Stats().Objects)
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed answer object").Len())
}

func TestStream_TruncatedBodyLogsResidual(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	body := snapshotJSON("STREAMING", "partial") + `{"answer":{"state":"SUCC`

	s := NewStream(strings.NewReader(body), WithLogger(logging.NewLoggerFromCore(core)))
	events, err := Collect(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "partial", displayed(events))
	assert.True(t, events[len(events)-1].IsTerminal())
	assert.Equal(t, len(`{"answer":{"state":"SUCC`), s.Stats().DroppedBytes)
	assert.Equal(t, 1, logs.Len())
}

func TestStream_TransportErrorEndsWithoutDone(t *testing.T) {
	boom := errors.New("unexpected EOF from proxy")
	r := io.MultiReader(strings.NewReader(snapshotJSON("STREAMING", "partial")), iotest.ErrReader(boom))

	events, err := Collect(context.Background(), NewStream(r))
	assert.ErrorIs(t, err, boom)
	require.Len(t, events, 1)
	assert.Equal(t, ChunkEvent("partial", false), events[0])
}

func TestStream_UpstreamErrorObject(t *testing.T) {
	body := snapshotJSON("STREAMING", "a") +
		`{"error":{"code":403,"message":"Permission denied","status":"PERMISSION_DENIED"}}`

	s := NewStream(strings.NewReader(body))
	events, err := Collect(context.Background(), s)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamStatus))
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
	assert.Len(t, events, 1)
	assert.True(t, s.Stats().UpstreamError)
}

// blockingReader yields one object then blocks until the context ends.
type blockingReader struct {
	first []byte
	ctx   context.Context
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if len(b.first) > 0 {
		n := copy(p, b.first)
		b.first = b.first[n:]
		return n, nil
	}
	<-b.ctx.Done()
	return 0, errors.New("body closed")
}

func TestStream_CancelStopsWithoutDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(&blockingReader{first: []byte(snapshotJSON("STREAMING", "Hi")), ctx: ctx})

	ev, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ChunkEvent("Hi", false), ev)

	cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_RegressionIsWarned(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	body := snapshotJSON("STREAMING", "abcdef") + snapshotJSON("STREAMING", "abc") + snapshotJSON("SUCCEEDED", "abcdef")

	s := NewStream(strings.NewReader(body), WithLogger(logging.NewLoggerFromCore(core)))
	events, err := Collect(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "abcdef", displayed(events))
	assert.Equal(t, 1, s.Stats().Regressions)
	warned := logs.FilterMessage("absorbed non-extending streaming snapshot, upstream may be reordering").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zap.WarnLevel, warned[0].Level)
}
