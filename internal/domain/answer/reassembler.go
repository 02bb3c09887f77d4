package answer

import (
	"bytes"
	"context"
	"io"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	// DefaultMaxBufferSize bounds the bytes held for one unfinished object.
	DefaultMaxBufferSize = 8 << 20
	// DefaultReadSize is the size of each pull from the underlying reader.
	DefaultReadSize = 4 << 10
)

// ErrObjectTooLarge is returned when a single object outgrows the buffer limit.
var ErrObjectTooLarge = errors.New(errors.CodeUpstreamDecode, "answer object exceeds buffer limit")

type options struct {
	logger        logging.Logger
	maxBufferSize int
	readSize      int
}

// Option configures a Reassembler or a Stream.
type Option func(*options)

// WithLogger sets the logger used for dropped residuals and malformed objects.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxBufferSize overrides DefaultMaxBufferSize.
func WithMaxBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBufferSize = n
		}
	}
}

// WithReadSize overrides DefaultReadSize.
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:        logging.NewNopLogger(),
		maxBufferSize: DefaultMaxBufferSize,
		readSize:      DefaultReadSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Reassembler extracts complete top-level JSON objects from a byte stream
// whose reads may split an object anywhere, including inside a multi-byte
// character. Bytes are accumulated undecoded, so splitting is harmless.
//
// A Reassembler is owned by one request and is not safe for concurrent use.
type Reassembler struct {
	r    io.Reader
	opts options

	buf  []byte
	head int // first byte still needed
	pos  int // next byte to scan

	depth    int
	inString bool
	escaped  bool
	start    int // offset of the '{' opening the current object, -1 if none

	chunk   []byte
	err     error
	dropped int
}

// NewReassembler reads from r on demand.
func NewReassembler(r io.Reader, opts ...Option) *Reassembler {
	o := buildOptions(opts)
	return &Reassembler{
		r:     r,
		opts:  o,
		start: -1,
		chunk: make([]byte, o.readSize),
	}
}

// Next blocks until a complete object is available and returns it. It
// returns io.EOF once the reader is exhausted, ctx.Err() when ctx is done,
// and any other read error unchanged. After an error every call returns the
// same error.
func (a *Reassembler) Next(ctx context.Context) (string, error) {
	for {
		if obj, ok := a.scan(); ok {
			return obj, nil
		}
		if a.err != nil {
			return "", a.err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := a.fill(); err != nil {
			a.fail(err)
			return "", a.err
		}
	}
}

// DroppedBytes returns the size of the unterminated residual discarded at EOF.
func (a *Reassembler) DroppedBytes() int {
	return a.dropped
}

// Buffered returns the number of bytes held for an unfinished object.
func (a *Reassembler) Buffered() int {
	return len(a.buf) - a.head
}

// scan advances over buffered bytes and returns the next complete object.
func (a *Reassembler) scan() (string, bool) {
	for ; a.pos < len(a.buf); a.pos++ {
		c := a.buf[a.pos]

		if a.escaped {
			a.escaped = false
			continue
		}
		if a.inString {
			switch c {
			case '\\':
				a.escaped = true
			case '"':
				a.inString = false
			}
			continue
		}

		switch c {
		case '"':
			a.inString = true
		case '{':
			if a.depth == 0 {
				a.start = a.pos
			}
			a.depth++
		case '}':
			if a.depth == 0 {
				// stray closer outside any object
				continue
			}
			a.depth--
			if a.depth == 0 {
				obj := string(a.buf[a.start : a.pos+1])
				a.pos++
				a.head = a.pos
				a.start = -1
				return obj, true
			}
		}
	}

	// Nothing pending: inter-object bytes can be released.
	if a.depth == 0 && !a.inString && !a.escaped {
		a.head = a.pos
	}
	return "", false
}

// fill compacts consumed bytes away and appends one read.
func (a *Reassembler) fill() error {
	if a.head > 0 {
		n := copy(a.buf, a.buf[a.head:])
		a.buf = a.buf[:n]
		a.pos -= a.head
		if a.start >= 0 {
			a.start -= a.head
		}
		a.head = 0
	}

	n, err := a.r.Read(a.chunk)
	if n > 0 {
		a.buf = append(a.buf, a.chunk[:n]...)
		if len(a.buf)-a.head > a.opts.maxBufferSize {
			return ErrObjectTooLarge
		}
	}
	if err == io.EOF {
		a.finishResidual()
		return io.EOF
	}
	return err
}

// finishResidual logs and drops whatever could not be completed.
func (a *Reassembler) finishResidual() {
	residual := bytes.TrimSpace(a.buf[a.head:])
	if len(residual) == 0 {
		return
	}
	a.dropped = len(residual)
	preview := residual
	if len(preview) > 120 {
		preview = preview[:120]
	}
	a.opts.logger.Warn("answer stream ended inside an unterminated object",
		logging.Int("dropped_bytes", a.dropped),
		logging.Int("depth", a.depth),
		logging.String("preview", string(preview)),
	)
}

// fail records a terminal error and releases the buffer.
func (a *Reassembler) fail(err error) {
	a.err = err
	a.buf = nil
	a.head, a.pos, a.start, a.depth = 0, 0, -1, 0
	a.inString, a.escaped = false, false
}
