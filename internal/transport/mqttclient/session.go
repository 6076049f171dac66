package mqttclient

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// sessionMagic and sessionVersion identify the on-disk session file
// format described in the wire layout: a fixed header, the client's
// subscription list, and its in-flight publish list.
const (
	sessionMagic   uint32 = 0x4D435053 // "MCPS"
	sessionVersion uint16 = 1
)

var (
	errSessionMagic   = errors.New("mqttclient: session file magic mismatch")
	errSessionVersion = errors.New("mqttclient: session file version unsupported")
)

type subscription struct {
	Topic string
	QoS   int32
}

type sessionInflight struct {
	PacketID uint16
	Topic    string
	Payload  []byte
	QoS      int32
	Retain   int32
	SentMs   uint64
	Retry    uint32
}

type sessionFile struct {
	ClientID     string
	CreatedMs    uint64
	LastAccessMs uint64
	ExpirySecs   uint32
	Subs         []subscription
	LastPacketID uint16
	Inflight     []sessionInflight
}

// encodeSession serializes s per the fixed binary layout: magic,
// version, timestamps, expiry, client ID, subscriptions, last packet
// ID, then the in-flight list.
func encodeSession(s sessionFile) []byte {
	var buf bytes.Buffer
	w := &binWriter{buf: &buf}

	w.u32(sessionMagic)
	w.u16(sessionVersion)
	w.u64(s.CreatedMs)
	w.u64(s.LastAccessMs)
	w.u32(s.ExpirySecs)

	w.u16(uint16(len(s.ClientID)))
	w.raw([]byte(s.ClientID))

	w.u16(uint16(len(s.Subs)))
	for _, sub := range s.Subs {
		w.u16(uint16(len(sub.Topic)))
		w.raw([]byte(sub.Topic))
		w.i32(sub.QoS)
	}

	w.u16(s.LastPacketID)

	w.u16(uint16(len(s.Inflight)))
	for _, m := range s.Inflight {
		w.u16(m.PacketID)
		w.u16(uint16(len(m.Topic)))
		w.raw([]byte(m.Topic))
		w.u32(uint32(len(m.Payload)))
		w.raw(m.Payload)
		w.i32(m.QoS)
		w.i32(m.Retain)
		w.u64(m.SentMs)
		w.u32(m.Retry)
	}

	return buf.Bytes()
}

// decodeSession parses raw per the same layout, rejecting files with a
// mismatched magic or a version newer than this build understands —
// callers are expected to delete such files rather than retry.
func decodeSession(raw []byte) (sessionFile, error) {
	r := &binReader{r: bytes.NewReader(raw)}
	var s sessionFile

	if magic := r.u32(); magic != sessionMagic {
		return s, errSessionMagic
	}
	if version := r.u16(); version > sessionVersion {
		return s, errSessionVersion
	}

	s.CreatedMs = r.u64()
	s.LastAccessMs = r.u64()
	s.ExpirySecs = r.u32()

	idLen := r.u16()
	s.ClientID = string(r.raw(int(idLen)))

	subCount := r.u16()
	s.Subs = make([]subscription, subCount)
	for i := range s.Subs {
		tLen := r.u16()
		topic := string(r.raw(int(tLen)))
		qos := r.i32()
		s.Subs[i] = subscription{Topic: topic, QoS: qos}
	}

	s.LastPacketID = r.u16()

	inflightCount := r.u16()
	s.Inflight = make([]sessionInflight, inflightCount)
	for i := range s.Inflight {
		var m sessionInflight
		m.PacketID = r.u16()
		tLen := r.u16()
		m.Topic = string(r.raw(int(tLen)))
		pLen := r.u32()
		m.Payload = r.raw(int(pLen))
		m.QoS = r.i32()
		m.Retain = r.i32()
		m.SentMs = r.u64()
		m.Retry = r.u32()
		s.Inflight[i] = m
	}

	if r.err != nil {
		return sessionFile{}, r.err
	}
	return s, nil
}

// binWriter/binReader are small big-endian helpers so the encode/decode
// pair above reads as a straight field-by-field transcription of the
// wire layout instead of repeated binary.Write/Read error checks.
type binWriter struct {
	buf *bytes.Buffer
}

func (w *binWriter) u16(v uint16) { binary.Write(w.buf, binary.BigEndian, v) }
func (w *binWriter) u32(v uint32) { binary.Write(w.buf, binary.BigEndian, v) }
func (w *binWriter) u64(v uint64) { binary.Write(w.buf, binary.BigEndian, v) }
func (w *binWriter) i32(v int32)  { binary.Write(w.buf, binary.BigEndian, v) }
func (w *binWriter) raw(b []byte) { w.buf.Write(b) }

type binReader struct {
	r   *bytes.Reader
	err error
}

func (r *binReader) u16() uint16 {
	var v uint16
	if r.err == nil {
		r.err = binary.Read(r.r, binary.BigEndian, &v)
	}
	return v
}

func (r *binReader) u32() uint32 {
	var v uint32
	if r.err == nil {
		r.err = binary.Read(r.r, binary.BigEndian, &v)
	}
	return v
}

func (r *binReader) u64() uint64 {
	var v uint64
	if r.err == nil {
		r.err = binary.Read(r.r, binary.BigEndian, &v)
	}
	return v
}

func (r *binReader) i32() int32 {
	var v int32
	if r.err == nil {
		r.err = binary.Read(r.r, binary.BigEndian, &v)
	}
	return v
}

func (r *binReader) raw(n int) []byte {
	if r.err != nil || n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = err
		return nil
	}
	return b
}
