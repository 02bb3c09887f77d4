package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const doneSentinel = "[DONE]"

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Prompt    string `json:"prompt"`
	SMILES    string `json:"smiles,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type Reference struct {
	Title          string `json:"title"`
	URI            string `json:"uri"`
	Content        string `json:"content"`
	PageIdentifier string `json:"pageIdentifier,omitempty"`
}

// ChatMetadata arrives once per answer, after the last text chunk.
type ChatMetadata struct {
	SessionID        string      `json:"sessionId"`
	RelatedQuestions []string    `json:"relatedQuestions"`
	References       []Reference `json:"references"`
}

// ChatEvent is one decoded SSE frame. Exactly one of Content/Replace,
// Metadata, Done or Error is meaningful.
type ChatEvent struct {
	Content  string
	Replace  bool
	Metadata *ChatMetadata
	Done     bool
	Error    string
}

// wireFrame is the union of every JSON frame the server sends.
type wireFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Replace bool   `json:"replace"`
	Error   bool   `json:"error"`
	ChatMetadata
}

// ChatStream reads an answer as it is generated. Call Close when done.
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool

	mu   sync.Mutex
	text strings.Builder
	meta *ChatMetadata
}

// Chat opens a streaming answer. The request is not retried since the
// server may already have started generating.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidConfig)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	httpReq, requestID, err := c.newRequest(ctx, http.MethodPost, "/api/v1/chat", payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// The client-wide timeout would cut long answers short.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, body, requestID)
	}
	c.logger.Debugf("chat stream opened [request_id=%s]", requestID)
	return newChatStream(resp.Body), nil
}

func newChatStream(body io.ReadCloser) *ChatStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ChatStream{body: body, scanner: sc}
}

// Next returns the next event. The [DONE] frame is returned as an event with
// Done set; every call after it returns io.EOF. A stream that ends without
// [DONE] yields io.ErrUnexpectedEOF.
func (s *ChatStream) Next() (*ChatEvent, error) {
	if s.done {
		return nil, io.EOF
	}
	var data strings.Builder
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			return s.decode(data.String())
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(v, " "))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if data.Len() > 0 {
		return s.decode(data.String())
	}
	return nil, io.ErrUnexpectedEOF
}

func (s *ChatStream) decode(data string) (*ChatEvent, error) {
	if data == doneSentinel {
		s.done = true
		return &ChatEvent{Done: true}, nil
	}
	var f wireFrame
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, fmt.Errorf("malformed event %q: %w", data, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case f.Error:
		return &ChatEvent{Error: f.Content}, nil
	case f.Type == "metadata":
		m := f.ChatMetadata
		s.meta = &m
		return &ChatEvent{Metadata: &m}, nil
	default:
		if f.Replace {
			s.text.Reset()
		}
		s.text.WriteString(f.Content)
		return &ChatEvent{Content: f.Content, Replace: f.Replace}, nil
	}
}

// Text is the answer received so far with replacements applied.
func (s *ChatStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

func (s *ChatStream) Metadata() *ChatMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *ChatStream) Close() error {
	return s.body.Close()
}

// Collect drains the stream and returns the final text. A server error
// frame is returned as an error.
func (s *ChatStream) Collect() (string, *ChatMetadata, error) {
	defer s.Close()
	for {
		ev, err := s.Next()
		if err == io.EOF {
			return s.Text(), s.Metadata(), nil
		}
		if err != nil {
			return s.Text(), s.Metadata(), err
		}
		if ev.Error != "" {
			return s.Text(), s.Metadata(), fmt.Errorf("molsearch: %s", ev.Error)
		}
	}
}

// AnswerResult is the non-streaming answer.
type AnswerResult struct {
	Answer           string      `json:"answer"`
	SessionID        string      `json:"sessionId"`
	QueryID          string      `json:"queryId,omitempty"`
	RelatedQuestions []string    `json:"relatedQuestions"`
	References       []Reference `json:"references"`
}

// Answer asks for the whole answer in one response.
func (c *Client) Answer(ctx context.Context, req ChatRequest) (*AnswerResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidConfig)
	}
	var out AnswerResult
	if err := c.post(ctx, "/api/v1/chat/answer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
