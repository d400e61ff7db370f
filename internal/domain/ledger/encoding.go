package ledger

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/vetledger/vetledger/internal/platform/apperr"
)

// Canonical encoding of a ReviewedEncounter. The byte stream is hashed into
// the log, so any change here invalidates every existing proof. Strings are
// a 4-byte little-endian length followed by UTF-8 bytes; counts and float
// bits are 8-byte little-endian; the patient identity carries a tag byte
// (0x00 local, 0x01 server); the transcript digest is 32 raw bytes.

const (
	tagLocalID  = 0x00
	tagServerID = 0x01
)

// Encode serializes the encounter into its canonical byte form.
func Encode(e *ReviewedEncounter) []byte {
	var buf bytes.Buffer

	writeString(&buf, e.DraftID)
	if e.Patient.Server {
		buf.WriteByte(tagServerID)
	} else {
		buf.WriteByte(tagLocalID)
	}
	writeString(&buf, e.Patient.ID)
	writeString(&buf, e.ReviewerID)
	writeString(&buf, e.ReviewedAt.UTC().Format(time.RFC3339))

	writeUint64(&buf, uint64(len(e.Items)))
	for _, it := range e.Items {
		writeString(&buf, it.SKU)
		writeUint64(&buf, math.Float64bits(it.Quantity))
		writeString(&buf, it.Unit)
		writeString(&buf, it.Route)
		writeString(&buf, it.Species)
	}

	buf.Write(e.TranscriptDigest[:])
	return buf.Bytes()
}

// Decode parses canonical bytes back into an encounter. It fails on any
// truncation or trailing garbage; a payload that does not decode exactly is
// evidence of corruption.
func Decode(data []byte) (*ReviewedEncounter, error) {
	r := &reader{data: data}
	var e ReviewedEncounter

	e.DraftID = r.readString()
	tag := r.readByte()
	e.Patient.Server = tag == tagServerID
	e.Patient.ID = r.readString()
	e.ReviewerID = r.readString()
	reviewedAt := r.readString()

	n := r.readUint64()
	if r.err == nil && n > uint64(len(data)) {
		return nil, apperr.New(apperr.Consistency, "encounter claims %d line items in %d bytes", n, len(data))
	}
	for i := uint64(0); i < n && r.err == nil; i++ {
		var it LineItem
		it.SKU = r.readString()
		it.Quantity = math.Float64frombits(r.readUint64())
		it.Unit = r.readString()
		it.Route = r.readString()
		it.Species = r.readString()
		e.Items = append(e.Items, it)
	}

	digest := r.readBytes(32)
	if r.err != nil {
		return nil, apperr.Wrap(r.err, apperr.Consistency, "decode encounter")
	}
	copy(e.TranscriptDigest[:], digest)

	if tag != tagLocalID && tag != tagServerID {
		return nil, apperr.New(apperr.Consistency, "unknown patient identity tag 0x%02x", tag)
	}
	if r.pos != len(data) {
		return nil, apperr.New(apperr.Consistency, "%d trailing bytes after encounter", len(data)-r.pos)
	}

	t, err := time.Parse(time.RFC3339, reviewedAt)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Consistency, "decode reviewed_at")
	}
	e.ReviewedAt = t.UTC()
	return &e, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) readBytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = apperr.New(apperr.Consistency, "truncated at offset %d", r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) readByte() byte {
	b := r.readBytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) readUint64() uint64 {
	b := r.readBytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) readString() string {
	b := r.readBytes(4)
	if b == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(b)
	s := r.readBytes(int(n))
	if s == nil {
		return ""
	}
	return string(s)
}
