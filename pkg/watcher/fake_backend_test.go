package watcher

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// fakeBackend is a scripted Backend. Tests drive completions by hand through
// the handles it opens.
type fakeBackend struct {
	mu       sync.Mutex
	openErr  error
	allocErr error
	handles  []*fakeHandle
	allocs   int
	frees    int
	closed   bool

	// armErr returns the error for the n-th Arm call (1 based) of a handle.
	armErr func(n int) error
}

func (b *fakeBackend) Open(dir string, recursive bool) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openErr != nil {
		return nil, b.openErr
	}
	h := &fakeHandle{backend: b, dir: dir, recursive: recursive}
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *fakeBackend) Alloc(size int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allocErr != nil {
		return nil, b.allocErr
	}
	b.allocs++
	return make([]byte, size), nil
}

func (b *fakeBackend) Free([]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frees++
	return nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) handle(t *testing.T, i int) *fakeHandle {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.handles) {
		t.Fatalf("handle %d not opened (have %d)", i, len(b.handles))
	}
	return b.handles[i]
}

func (b *fakeBackend) counts() (allocs, frees int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocs, b.frees
}

type fakeHandle struct {
	backend   *fakeBackend
	dir       string
	recursive bool

	mu        sync.Mutex
	op        *Operation
	arms      int
	cancels   int
	cancelErr error
	closed    bool

	// keepOnCancel leaves the read outstanding after Cancel.
	keepOnCancel bool
}

func (h *fakeHandle) Arm(op *Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.op != nil {
		return ErrAlreadyArmed
	}
	h.arms++
	if h.backend.armErr != nil {
		if err := h.backend.armErr(h.arms); err != nil {
			return err
		}
	}
	h.op = op
	return nil
}

func (h *fakeHandle) Cancel() error {
	h.mu.Lock()
	h.cancels++
	op := h.op
	if !h.keepOnCancel {
		h.op = nil
	}
	err := h.cancelErr
	h.mu.Unlock()

	if op != nil && !h.keepOnCancel {
		op.Complete(0, ErrOperationAborted)
	}
	return err
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// take detaches the outstanding operation.
func (h *fakeHandle) take(t *testing.T) *Operation {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.op == nil {
		t.Fatal("no operation outstanding")
	}
	op := h.op
	h.op = nil
	return op
}

// deliver completes the outstanding read with records.
func (h *fakeHandle) deliver(t *testing.T, records ...Record) {
	t.Helper()
	op := h.take(t)
	n, consumed := EncodeRecords(op.Buffer, records)
	if consumed != len(records) {
		t.Fatalf("only %d of %d records fit in the buffer", consumed, len(records))
	}
	op.Complete(n, nil)
}

// deliverRaw completes the outstanding read with raw bytes.
func (h *fakeHandle) deliverRaw(t *testing.T, raw []byte) {
	t.Helper()
	op := h.take(t)
	copy(op.Buffer, raw)
	op.Complete(len(raw), nil)
}

// fail completes the outstanding read with err.
func (h *fakeHandle) fail(t *testing.T, err error) {
	t.Helper()
	h.take(t).Complete(0, err)
}

func (h *fakeHandle) stats() (arms, cancels int, closed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.arms, h.cancels, h.closed
}

// recorder collects callback invocations.
type recorder struct {
	mu       sync.Mutex
	records  []Record
	userData []any
}

func (r *recorder) callback(userData any, action Action, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Action: action, Name: name})
	r.userData = append(r.userData, userData)
}

func (r *recorder) snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// syncBuffer is a goroutine safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newCapturingLogger() (logger.Logger, *syncBuffer) {
	sink := &syncBuffer{}
	return logger.NewWithWriter(sink, logger.Config{Level: "debug"}), sink
}

var errBoom = errors.New("boom")
