// Package protocol implements the master/agent wire protocol: a 4-byte
// big-endian length prefix followed by a JSON payload, read and written
// over a plain net.Conn. Adapted from the teacher's internal/codex
// transport (full-duplex framed RPC, per-socket write lock,
// reconnect+backoff belong here in spirit) with the wire format itself
// ported from WebSocket frames to this raw length-prefixed framing.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// MaxFrameBytes bounds a single frame's declared length, guarding against
// a corrupt or hostile length prefix forcing an unbounded allocation.
const MaxFrameBytes = 64 << 20 // 64MiB

// WriteFrame writes one length-prefixed JSON frame. Safe to call from
// a single goroutine at a time per connection — callers that write from
// multiple goroutines must serialize through a FrameWriter.
func WriteFrame(w io.Writer, v any) error {
	op := "protocol.WriteFrame"
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, op, "marshal payload")
	}
	if len(data) > MaxFrameBytes {
		return apperrors.Wrap(apperrors.ErrFramingError, op, fmt.Sprintf("payload too large: %d bytes", len(data)))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return apperrors.Wrap(err, op, "write length prefix")
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.Wrap(err, op, "write payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame into out. Returns
// io.EOF (unwrapped) when the peer closed the connection cleanly before
// any byte of a new frame arrived, matching the teacher's convention of
// letting callers distinguish a clean disconnect from a mid-frame error.
func ReadFrame(r io.Reader, out any) error {
	data, err := ReadRawFrame(r)
	if err != nil {
		return err
	}
	op := "protocol.ReadFrame"
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrFramingError, op, "decode json payload")
	}
	return nil
}

// ReadRawFrame reads one length-prefixed frame and returns its raw JSON
// bytes without decoding them, so a caller can first inspect the "type"
// discriminant and then unmarshal into the matching concrete message.
// Returns io.EOF (unwrapped) on a clean disconnect before any byte of a
// new frame arrived.
func ReadRawFrame(r io.Reader) ([]byte, error) {
	op := "protocol.ReadRawFrame"

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, apperrors.Wrap(err, op, "read length prefix")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, apperrors.Wrap(apperrors.ErrFramingError, op, fmt.Sprintf("declared frame length %d exceeds max", length))
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, apperrors.Wrap(err, op, "read payload")
	}
	return data, nil
}

// FrameWriter serializes concurrent WriteFrame calls against one
// connection behind a single mutex — the connection handler's goroutine
// (initial dispatch, heartbeat-triggered queue drains) and the Admin
// API's request handlers (scan dispatch, delete approvals) write to the
// same socket from different goroutines.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter wraps w with a write lock.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write encodes and sends v as one frame, holding the lock for the
// duration of the write.
func (fw *FrameWriter) Write(v any) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return WriteFrame(fw.w, v)
}
