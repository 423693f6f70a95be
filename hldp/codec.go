package hldp

import (
	"encoding/binary"
	"fmt"
)

// ReplyBuilder accumulates a packet payload. Its zero value is ready to
// use. Mirrors the original HLDPServer::ReplyBuilder: raw bytes, int32,
// length-prefixed strings, and a back-patchable int32 slot for deferred
// counts (backtrace frame counts, expression child counts).
type ReplyBuilder struct {
	buf []byte
}

// NewReplyBuilder returns an empty builder.
func NewReplyBuilder() *ReplyBuilder {
	return &ReplyBuilder{}
}

// AppendRaw appends opaque bytes verbatim.
func (b *ReplyBuilder) AppendRaw(p []byte) *ReplyBuilder {
	b.buf = append(b.buf, p...)
	return b
}

// AppendInt32 appends a little-endian signed 32-bit integer.
func (b *ReplyBuilder) AppendInt32(v int32) *ReplyBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// AppendString appends a length-prefixed UTF-8 string. An empty string
// serializes as a zero-length prefix, matching the original's treatment of
// a null pointer as an empty string.
func (b *ReplyBuilder) AppendString(s string) *ReplyBuilder {
	b.AppendInt32(int32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// DelayedInt32 is a handle to a 4-byte slot reserved by ReserveInt32,
// mutable after later data has been appended.
type DelayedInt32 struct {
	offset int
}

// ReserveInt32 appends a placeholder int32 slot and returns a handle that
// can later be filled in with Patch, once the real value (e.g. a frame or
// child count) is known.
func (b *ReplyBuilder) ReserveInt32() DelayedInt32 {
	slot := DelayedInt32{offset: len(b.buf)}
	b.AppendInt32(0)
	return slot
}

// Patch overwrites a previously reserved slot.
func (b *ReplyBuilder) Patch(slot DelayedInt32, v int32) {
	binary.LittleEndian.PutUint32(b.buf[slot.offset:slot.offset+4], uint32(v))
}

// Bytes returns the accumulated payload.
func (b *ReplyBuilder) Bytes() []byte {
	return b.buf
}

// RequestReader reads a fixed payload buffer with a cursor, failing
// (without advancing) on truncation, mirroring the original's
// RequestReader.
type RequestReader struct {
	buf    []byte
	cursor int
}

// NewRequestReader wraps buf for sequential reads.
func NewRequestReader(buf []byte) *RequestReader {
	return &RequestReader{buf: buf}
}

// ReadInt32 reads a little-endian signed 32-bit integer.
func (r *RequestReader) ReadInt32() (int32, error) {
	if r.cursor+4 > len(r.buf) {
		return 0, fmt.Errorf("hldp: truncated int32 at offset %d", r.cursor)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.cursor : r.cursor+4])
	r.cursor += 4
	return int32(v), nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *RequestReader) ReadString() (string, error) {
	start := r.cursor
	n, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 || r.cursor+int(n) > len(r.buf) {
		r.cursor = start
		return "", fmt.Errorf("hldp: truncated string at offset %d", start)
	}
	s := string(r.buf[r.cursor : r.cursor+int(n)])
	r.cursor += int(n)
	return s, nil
}

// Remaining reports whether unread bytes remain in the buffer.
func (r *RequestReader) Remaining() int {
	return len(r.buf) - r.cursor
}

// ReadBacktraceEntry reads one BacktraceEntry in wire order, the decode
// counterpart of AppendBacktraceEntry. Used client-side (dapbridge,
// hldp-console) to unpack scTargetStopped's frame array.
func (r *RequestReader) ReadBacktraceEntry() (BacktraceEntry, error) {
	var e BacktraceEntry
	var err error
	if e.FrameID, err = r.ReadInt32(); err != nil {
		return e, err
	}
	if e.Function, err = r.ReadString(); err != nil {
		return e, err
	}
	if e.Arguments, err = r.ReadString(); err != nil {
		return e, err
	}
	if e.SourceFile, err = r.ReadString(); err != nil {
		return e, err
	}
	if e.Line, err = r.ReadInt32(); err != nil {
		return e, err
	}
	return e, nil
}

// ReadExpressionDescriptor reads one ExpressionDescriptor in wire order, the
// decode counterpart of AppendExpressionDescriptor.
func (r *RequestReader) ReadExpressionDescriptor() (ExpressionDescriptor, error) {
	var d ExpressionDescriptor
	var err error
	if d.ID, err = r.ReadInt32(); err != nil {
		return d, err
	}
	if d.Name, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Type, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Value, err = r.ReadString(); err != nil {
		return d, err
	}
	if d.Flags, err = r.ReadInt32(); err != nil {
		return d, err
	}
	if d.ChildCount, err = r.ReadInt32(); err != nil {
		return d, err
	}
	return d, nil
}

// DecodeStopped unpacks an scTargetStopped payload: reason, int_param,
// string_param, and the backtrace, innermost frame first on the wire
// (spec.md §6).
func DecodeStopped(payload []byte) (reason StopReason, intParam int32, stringParam string, frames []BacktraceEntry, err error) {
	r := NewRequestReader(payload)
	var v int32
	if v, err = r.ReadInt32(); err != nil {
		return
	}
	reason = StopReason(v)
	if intParam, err = r.ReadInt32(); err != nil {
		return
	}
	if stringParam, err = r.ReadString(); err != nil {
		return
	}
	var count int32
	if count, err = r.ReadInt32(); err != nil {
		return
	}
	frames = make([]BacktraceEntry, 0, count)
	for i := int32(0); i < count; i++ {
		var e BacktraceEntry
		if e, err = r.ReadBacktraceEntry(); err != nil {
			return
		}
		frames = append(frames, e)
	}
	return
}

// AppendBacktraceEntry writes one BacktraceEntry in wire order.
func (b *ReplyBuilder) AppendBacktraceEntry(e BacktraceEntry) *ReplyBuilder {
	return b.AppendInt32(e.FrameID).
		AppendString(e.Function).
		AppendString(e.Arguments).
		AppendString(e.SourceFile).
		AppendInt32(e.Line)
}

// AppendExpressionDescriptor writes one ExpressionDescriptor in wire
// order, shared by scExpressionCreated and each element of
// scExpressionChildrenQueried's array.
func (b *ReplyBuilder) AppendExpressionDescriptor(d ExpressionDescriptor) *ReplyBuilder {
	return b.AppendInt32(d.ID).
		AppendString(d.Name).
		AppendString(d.Type).
		AppendString(d.Value).
		AppendInt32(d.Flags).
		AppendInt32(d.ChildCount)
}
