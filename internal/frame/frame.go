// Package frame implements the two length-prefixed wire dialects the
// bridge speaks: the IPC dialect used on the broker's stream socket, and
// the native-messaging dialect used between the relay and the browser
// process. Both dialects share the shape [4-byte length][UTF-8 JSON], and
// differ only in endianness and the maximum frame size they allow.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Dialect describes one of the two length-prefix framings.
type Dialect struct {
	name      string
	byteOrder binary.ByteOrder
	maxBytes  uint32
}

// IPC is the broker's dialect: big-endian length, 64 MB cap.
var IPC = Dialect{name: "ipc", byteOrder: binary.BigEndian, maxBytes: 64 << 20}

// Native is the relay's dialect: little-endian length, 1 MB cap, matching
// the real Chrome native-messaging host protocol.
var Native = Dialect{name: "native", byteOrder: binary.LittleEndian, maxBytes: 1 << 20}

const headerLen = 4

// ErrFrameTooLarge is returned by Encode and by the Decoder when a
// declared or requested length exceeds the dialect's cap.
var ErrFrameTooLarge = errors.New("frame: declared length exceeds dialect cap")

// Encode wraps payload in a length-prefixed frame for d. It fails fast
// without allocating the frame buffer if payload exceeds the cap.
func (d Dialect) Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > uint64(d.maxBytes) {
		return nil, fmt.Errorf("%s: %w (%d > %d)", d.name, ErrFrameTooLarge, len(payload), d.maxBytes)
	}
	buf := make([]byte, headerLen+len(payload))
	d.byteOrder.PutUint32(buf[:headerLen], uint32(len(payload)))
	copy(buf[headerLen:], payload)
	return buf, nil
}

// Decoder incrementally reassembles complete frames from arbitrary byte
// chunks. It is restartable: Reset clears any partial frame, which a
// caller must do after a reconnect so stale bytes from a prior
// connection are never blended into the next one.
type Decoder struct {
	dialect Dialect
	buf     []byte
}

// NewDecoder returns a Decoder for d with an empty internal buffer.
func NewDecoder(d Dialect) *Decoder {
	return &Decoder{dialect: d}
}

// Reset discards any buffered partial frame.
func (dec *Decoder) Reset() {
	dec.buf = dec.buf[:0]
}

// Push appends chunk to the internal buffer and returns every complete
// message it can extract, in order. A trailing partial frame, if any,
// is retained for the next call. Push returns ErrFrameTooLarge (without
// consuming further data) the moment a declared length exceeds the
// dialect's cap, since that declared length can never be satisfied.
func (dec *Decoder) Push(chunk []byte) ([][]byte, error) {
	dec.buf = append(dec.buf, chunk...)

	var messages [][]byte
	for {
		if len(dec.buf) < headerLen {
			return messages, nil
		}
		length := dec.dialect.byteOrder.Uint32(dec.buf[:headerLen])
		if length > dec.dialect.maxBytes {
			return messages, fmt.Errorf("%s: %w (declared %d > %d)", dec.dialect.name, ErrFrameTooLarge, length, dec.dialect.maxBytes)
		}
		total := headerLen + int(length)
		if len(dec.buf) < total {
			return messages, nil
		}
		payload := make([]byte, length)
		copy(payload, dec.buf[headerLen:total])
		messages = append(messages, payload)
		dec.buf = dec.buf[total:]
	}
}

// Compact copies any retained partial frame to the front of a fresh
// backing array, so a long-lived Decoder fed many small chunks does not
// pin an ever-growing underlying array through repeated re-slicing.
// Callers that drive Push in a tight loop should call Compact between
// reads once the queue of pending messages has been drained.
func (dec *Decoder) Compact() {
	if len(dec.buf) == 0 {
		dec.buf = nil
		return
	}
	fresh := make([]byte, len(dec.buf))
	copy(fresh, dec.buf)
	dec.buf = fresh
}
