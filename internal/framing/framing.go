// Package framing implements the shared synchronization and wire-framing
// primitives used by every transport and by the pending-request registry:
// a one-shot notifier, and length-prefixed message send/receive over a
// byte stream.
package framing

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// LengthPrefixSize is the width, in bytes, of the big-endian length prefix
// that precedes every framed payload.
const LengthPrefixSize = 4

// Notifier is a single-producer, single-consumer one-shot wakeup. Exactly
// one goroutine calls Signal; exactly one goroutine calls Wait. Unlike a
// raw condition variable, the channel's one-slot buffer makes cleanup
// deterministic: a Notifier that is never signaled is still safe
// to abandon, and Signal after Wait has already observed a timeout is a
// harmless no-op send into a buffered channel.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Signal wakes the waiter. It never blocks: the send goes into the
// channel's one-slot buffer, and a call that finds the buffer already
// full is dropped, so a late signal after a timeout is harmless.
func (n *Notifier) Signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Signal is called or ctx is done, whichever comes
// first. It returns true if the notifier was signaled.
func (n *Notifier) Wait(ctx context.Context) (signaled bool, err error) {
	select {
	case <-n.ch:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RecvOutcome classifies the result of Recv beyond a plain error, since
// callers (the pool, in particular) react differently to a clean close
// than to an oversize frame or a mid-read I/O error.
type RecvOutcome int

const (
	RecvOK RecvOutcome = iota
	RecvTimeout
	RecvClosed
	RecvOversize
	RecvIOError
)

var (
	// ErrOversizeFrame is returned when a declared length exceeds the
	// caller-supplied maximum.
	ErrOversizeFrame = errors.New("framing: declared length exceeds maximum")
	// ErrZeroLength is returned when a declared length is exactly 0.
	ErrZeroLength = errors.New("framing: declared length is zero")
)

// Send writes a length-prefixed frame: a 4-byte big-endian length followed
// by payload. When w is a *net.TCPConn the prefix and payload are written
// as a single vectored write (net.Buffers) to avoid an intermediate copy;
// otherwise the two pieces are written back to back.
//
// ctx is checked before the write begins; it does not interrupt a write
// already in flight (Go's net.Conn has no portable way to abort a
// blocking Write short of closing the connection, which the caller can do
// via ctx's own cancellation plumbing upstream of Send).
func Send(ctx context.Context, w io.Writer, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrZeroLength
	}

	prefix := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))

	if tcp, ok := w.(*net.TCPConn); ok {
		buffers := net.Buffers{prefix, payload}
		_, err := buffers.WriteTo(tcp)
		return err
	}

	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Recv reads exactly one length-prefixed frame: 4 bytes of declared
// length L, validated against maxSize, then exactly L bytes of payload
// into a freshly allocated buffer.
//
// cancel, if non-nil, is polled between the two reads so a caller shutting
// down doesn't have to wait for an in-flight read to complete on its own;
// it is not consulted mid-read, matching the spec's "checked between
// syscalls" contract.
func Recv(ctx context.Context, r io.Reader, maxSize uint32, cancel <-chan struct{}) ([]byte, RecvOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, RecvTimeout, err
	}
	select {
	case <-cancel:
		return nil, RecvIOError, context.Canceled
	default:
	}

	prefix := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, classifyReadErr(err)
	}

	length := binary.BigEndian.Uint32(prefix)
	if length == 0 {
		return nil, RecvOversize, ErrZeroLength
	}
	if length > maxSize {
		return nil, RecvOversize, fmt.Errorf("%w: declared %d > max %d", ErrOversizeFrame, length, maxSize)
	}

	select {
	case <-cancel:
		return nil, RecvIOError, context.Canceled
	default:
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, classifyReadErr(err)
	}
	return payload, RecvOK, nil
}

func classifyReadErr(err error) (RecvOutcome, error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return RecvClosed, err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return RecvTimeout, err
	}
	return RecvIOError, err
}

// BufferedReader wraps r with buffering sized for repeated small framed
// reads (SSE and MQTT readers both hold a long-lived *bufio.Reader rather
// than re-wrapping the socket per read).
func BufferedReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 32*1024)
}
