//go:build windows

package watcher

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// iocpBackend issues ReadDirectoryChangesW requests on handles associated
// with one I/O completion port. A single goroutine dequeues completion
// packets and hands them to the owning Operation.
type iocpBackend struct {
	iocp   windows.Handle
	logger logger.Logger

	mu      sync.Mutex
	handles map[*windows.Overlapped]*iocpHandle

	wg sync.WaitGroup
}

func newPlatformBackend(log logger.Logger) (Backend, error) {
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create I/O completion port: %w", err)
	}

	b := &iocpBackend{
		iocp:    iocp,
		logger:  log,
		handles: make(map[*windows.Overlapped]*iocpHandle),
	}

	b.wg.Add(1)
	go b.poll()

	return b, nil
}

// Open implements Backend.Open.
// Recursion is requested per read, so the flag is not needed here.
func (b *iocpBackend) Open(dir string, _ bool) (Handle, error) {
	path, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid directory path: %w", err)
	}

	h, err := windows.CreateFile(
		path,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateFile %s: %w", dir, err)
	}

	if _, err := windows.CreateIoCompletionPort(h, b.iocp, 0, 0); err != nil {
		_ = windows.CloseHandle(h) // nolint:errcheck
		return nil, fmt.Errorf("failed to associate completion port: %w", err)
	}

	handle := &iocpHandle{
		backend: b,
		dir:     h,
	}

	b.mu.Lock()
	b.handles[&handle.overlapped] = handle
	b.mu.Unlock()

	return handle, nil
}

// Alloc implements Backend.Alloc. VirtualAlloc returns page aligned memory
// outside the Go heap, so the kernel may write into it at any time.
func (b *iocpBackend) Alloc(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc: %w", err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil // nolint:govet
}

// Free implements Backend.Free.
func (b *iocpBackend) Free(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := windows.VirtualFree(uintptr(unsafe.Pointer(&buf[0])), 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("VirtualFree: %w", err)
	}
	return nil
}

// Close implements Backend.Close.
func (b *iocpBackend) Close() error {
	// A packet without an OVERLAPPED tells the poller to exit.
	if err := windows.PostQueuedCompletionStatus(b.iocp, 0, 0, nil); err != nil {
		b.logger.Warn("failed to wake completion poller", "error", err)
	}
	b.wg.Wait()

	if err := windows.CloseHandle(b.iocp); err != nil {
		return fmt.Errorf("failed to close completion port: %w", err)
	}
	return nil
}

func (b *iocpBackend) poll() {
	defer b.wg.Done()

	for {
		var (
			n          uint32
			key        uintptr
			overlapped *windows.Overlapped
		)
		err := windows.GetQueuedCompletionStatus(b.iocp, &n, &key, &overlapped, windows.INFINITE)
		if overlapped == nil {
			if err != nil {
				b.logger.Warn("completion port wait failed", "error", err)
			}
			return
		}

		b.mu.Lock()
		handle := b.handles[overlapped]
		b.mu.Unlock()
		if handle == nil {
			continue
		}

		handle.mu.Lock()
		op := handle.op
		handle.op = nil
		handle.mu.Unlock()
		if op == nil {
			continue
		}

		op.Complete(int(n), translateError(err))
	}
}

// translateError maps completion status codes to the package outcomes.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, windows.ERROR_NOTIFY_ENUM_DIR):
		return ErrOverflow
	case errors.Is(err, windows.ERROR_OPERATION_ABORTED):
		return ErrOperationAborted
	default:
		return err
	}
}

// iocpHandle is one directory opened for overlapped I/O. The OVERLAPPED
// lives inside the heap allocated handle and doubles as the packet key.
type iocpHandle struct {
	backend *iocpBackend
	dir     windows.Handle

	overlapped windows.Overlapped

	mu     sync.Mutex
	op     *Operation
	closed bool
}

// Arm implements Handle.Arm.
func (h *iocpHandle) Arm(op *Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.op != nil {
		return ErrAlreadyArmed
	}
	if len(op.Buffer) == 0 {
		return errors.New("empty notification buffer")
	}

	h.overlapped = windows.Overlapped{}
	h.op = op

	err := windows.ReadDirectoryChanges(
		h.dir,
		&op.Buffer[0],
		uint32(len(op.Buffer)),
		op.Recursive,
		uint32(op.Filter),
		nil,
		&h.overlapped,
		0,
	)
	if err != nil {
		h.op = nil
		return fmt.Errorf("ReadDirectoryChangesW: %w", err)
	}
	return nil
}

// Cancel implements Handle.Cancel.
func (h *iocpHandle) Cancel() error {
	err := windows.CancelIoEx(h.dir, &h.overlapped)
	if errors.Is(err, windows.ERROR_NOT_FOUND) {
		// Already completed; the packet is on its way.
		return nil
	}
	if err != nil {
		return fmt.Errorf("CancelIoEx: %w", err)
	}
	return nil
}

// Close implements Handle.Close.
func (h *iocpHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.backend.mu.Lock()
	delete(h.backend.handles, &h.overlapped)
	h.backend.mu.Unlock()

	if err := windows.CloseHandle(h.dir); err != nil {
		return fmt.Errorf("CloseHandle: %w", err)
	}
	return nil
}
