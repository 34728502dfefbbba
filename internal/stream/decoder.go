package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bharatr21/clinical-trials-agent/internal/logging"
)

// Decoder turns a live byte stream into a sequence of Events. It is lazy,
// one-pass, and non-restartable.
//
// Frames are blank-line delimited; within a frame only "data:"-prefixed
// lines carry payload, everything else (SSE comments, event fields) is
// ignored. Reads may split a frame at any byte offset: the residual tail is
// buffered and prefixed to the next chunk, so the decoded sequence is
// independent of chunk boundaries.
type Decoder struct {
	body    io.ReadCloser
	buf     []byte
	frame   strings.Builder
	queue   []Event
	err     error
	log     zerolog.Logger
	readBuf [4096]byte

	closeOnce sync.Once
	closeErr  error
}

// NewDecoder wraps a response body. The caller owns cancellation through the
// context passed to Next; Close releases the body.
func NewDecoder(body io.ReadCloser) *Decoder {
	return &Decoder{
		body: body,
		log:  logging.Component("stream"),
	}
}

// Next returns the next decoded event. It returns io.EOF when the source is
// exhausted and the context's error when cancellation is observed; in both
// cases the underlying source is released before returning. A malformed
// frame payload is logged and skipped, it never ends the sequence.
func (d *Decoder) Next(ctx context.Context) (*Event, error) {
	for {
		// Cancellation wins over already-decoded events: nothing is
		// delivered once the signal is observed.
		select {
		case <-ctx.Done():
			d.Close()
			return nil, ctx.Err()
		default:
		}

		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return &ev, nil
		}

		if d.err != nil {
			return nil, d.err
		}

		n, err := d.body.Read(d.readBuf[:])
		if n > 0 {
			d.buf = append(d.buf, d.readBuf[:n]...)
			d.decodeBuffered()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(bytes.TrimSpace(d.buf)) > 0 {
					d.log.Debug().Int("bytes", len(d.buf)).Msg("discarding unterminated trailing frame")
				}
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("reading stream: %w", err)
			}
			d.Close()
		}
	}
}

// decodeBuffered consumes every complete line in the buffer, emitting an
// event at each blank-line frame boundary. A trailing partial line stays in
// the buffer for the next read.
func (d *Decoder) decodeBuffered() {
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := string(bytes.TrimRight(d.buf[:idx], "\r"))
		d.buf = d.buf[idx+1:]

		if line == "" {
			if d.frame.Len() > 0 {
				d.emit(d.frame.String())
				d.frame.Reset()
			}
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if d.frame.Len() > 0 {
				d.frame.WriteByte('\n')
			}
			d.frame.WriteString(strings.TrimSpace(payload))
		}
	}
}

// emit parses one frame payload and queues the event.
func (d *Decoder) emit(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.log.Warn().Err(err).Str("payload", payload).Msg("skipping malformed frame")
		return
	}
	d.queue = append(d.queue, ev)
}

// Close releases the underlying source. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.body.Close()
	})
	return d.closeErr
}
