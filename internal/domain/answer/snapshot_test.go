package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshot_UnstructuredReferences(t *testing.T) {
	raw := `{
	  "answer": {
	    "state": "STREAMING",
	    "answerText": "Aspirin is acetylsalicylic acid.",
	    "relatedQuestions": ["How is it synthesised?"],
	    "references": [{
	      "unstructuredDocumentInfo": {
	        "title": "NB-0042",
	        "uri": "gs://lab/notebooks/NB-0042.pdf",
	        "chunkContents": [
	          {"content": "acetylation of salicylic acid", "pageIdentifier": "7"},
	          {"content": "ignored second chunk"}
	        ]
	      }
	    }]
	  },
	  "session": {"name": "projects/1/locations/global/collections/c/engines/e/sessions/9876543210"}
	}`

	snap, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, snap.State)
	assert.Equal(t, "Aspirin is acetylsalicylic acid.", snap.AnswerText)
	assert.Equal(t, []string{"How is it synthesised?"}, snap.RelatedQuestions)
	assert.Equal(t, "9876543210", snap.SessionID)
	assert.Equal(t, []Reference{{
		Title:          "NB-0042",
		URI:            "gs://lab/notebooks/NB-0042.pdf",
		Content:        "acetylation of salicylic acid",
		PageIdentifier: "7",
	}}, snap.References)
	assert.Nil(t, snap.UpstreamError)
}

func TestDecodeSnapshot_ChunkInfoReferences(t *testing.T) {
	raw := `{"answer":{"state":"SUCCEEDED","answerText":"x","references":[
	  {"chunkInfo":{"content":"yield 82%","documentMetadata":{"title":"NB-7","uri":"gs://b/NB-7.pdf","pageIdentifier":"3"}}},
	  {"somethingElse":{}},
	  {"unstructuredDocumentInfo":{"title":"NB-8","uri":"gs://b/NB-8.pdf"}}
	]}}`

	snap, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, snap.State)
	assert.Equal(t, []Reference{
		{Title: "NB-7", URI: "gs://b/NB-7.pdf", Content: "yield 82%", PageIdentifier: "3"},
		{Title: "NB-8", URI: "gs://b/NB-8.pdf"},
	}, snap.References)
	assert.Empty(t, snap.SessionID)
}

func TestDecodeSnapshot_MissingFieldsAreEmpty(t *testing.T) {
	snap, err := DecodeSnapshot(`{"unrelated":true}`)
	require.NoError(t, err)
	assert.Equal(t, StateUnspecified, snap.State)
	assert.Empty(t, snap.AnswerText)
	assert.Nil(t, snap.References)
}

func TestDecodeSnapshot_UpstreamError(t *testing.T) {
	snap, err := DecodeSnapshot(`{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	require.NoError(t, err)
	require.NotNil(t, snap.UpstreamError)
	assert.Equal(t, 429, snap.UpstreamError.Code)
	assert.Equal(t, "RESOURCE_EXHAUSTED", snap.UpstreamError.Status)
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"syntax", `{"answer":`},
		{"wrong type", `{"answer":"text"}`},
		{"wrong nested type", `{"answer":{"relatedQuestions":"q"}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot(tt.raw)
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestIsMalformed_OtherErrors(t *testing.T) {
	assert.False(t, IsMalformed(nil))
	assert.False(t, IsMalformed(ErrObjectTooLarge))
}

func TestSessionIDFromName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full name", "projects/p/locations/global/collections/c/engines/e/sessions/123", "123"},
		{"trailing segment", "projects/p/sessions/abc/answers/1", "abc"},
		{"no sessions", "projects/p/locations/global", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionIDFromName(tt.in))
		})
	}
}
