package watcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xmhha/folderwatch/pkg/logger"
)

// Completion is the outcome of one asynchronous operation.
type Completion struct {
	// Token identifies the watcher that issued the operation.
	Token uint64

	// Bytes is the number of valid bytes written into the buffer.
	Bytes int

	// Err is nil on success, ErrOverflow when change details were lost,
	// ErrOperationAborted after cancellation, or the backend failure.
	Err error
}

// Operation is the in-flight request state of a watcher. It is allocated
// once per watcher and stays at the same address for the watcher's lifetime,
// so backends may hold on to it while a request is outstanding.
type Operation struct {
	// Buffer receives the change records.
	Buffer []byte

	// Recursive requests changes of the whole subtree.
	Recursive bool

	// Filter selects the observed change categories.
	Filter Filter

	token uint64
	port  *Port

	mu      sync.Mutex
	pending bool
	done    chan struct{}
}

// Token returns the correlation token of the operation.
func (op *Operation) Token() uint64 {
	return op.token
}

// Pending reports whether the operation is outstanding.
func (op *Operation) Pending() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.pending
}

// Complete reports the outcome of the outstanding operation. From this point
// on the backend no longer touches Buffer. Calls on an operation that is not
// outstanding are ignored.
func (op *Operation) Complete(n int, err error) {
	op.mu.Lock()
	if !op.pending {
		op.mu.Unlock()
		return
	}
	op.pending = false
	close(op.done)
	op.mu.Unlock()

	op.port.post(Completion{Token: op.token, Bytes: n, Err: err})
}

// begin marks the operation outstanding before it is handed to a backend.
func (op *Operation) begin() error {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.pending {
		return ErrAlreadyArmed
	}
	op.pending = true
	op.done = make(chan struct{})
	return nil
}

// abandon reverts begin when the backend refused the request.
func (op *Operation) abandon() {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.pending {
		op.pending = false
		close(op.done)
	}
}

// wait blocks until the backend no longer holds the operation.
func (op *Operation) wait() {
	op.mu.Lock()
	done := op.done
	op.mu.Unlock()

	if done != nil {
		<-done
	}
}

// PortConfig contains completion port configuration.
type PortConfig struct {
	// Backend performs the directory reads.
	// Default: the platform backend.
	Backend Backend

	// Logger receives port diagnostics.
	// Default: logger.Noop().
	Logger logger.Logger
}

// Port delivers completions to watchers. It keeps the token to watcher
// registry and serialises dispatch, so at most one completion is handled at
// a time regardless of how many goroutines pump the port.
type Port struct {
	backend Backend
	logger  logger.Logger

	mu        sync.Mutex
	watchers  map[uint64]*Watcher
	nextToken uint64
	closed    bool

	qmu   sync.Mutex
	queue []Completion
	ready chan struct{}
	done  chan struct{}

	dispatchMu sync.Mutex
}

// NewPort creates a completion port.
func NewPort(cfg PortConfig) (*Port, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}

	backend := cfg.Backend
	if backend == nil {
		b, err := newPlatformBackend(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher backend: %w", err)
		}
		backend = b
	}

	return &Port{
		backend:  backend,
		logger:   cfg.Logger,
		watchers: make(map[uint64]*Watcher),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Run dispatches completions until ctx is done or the port is closed.
func (p *Port) Run(ctx context.Context) error {
	for {
		if _, err := p.RunOnce(ctx); err != nil {
			return err
		}
	}
}

// RunOnce waits until at least one completion is queued, dispatches every
// queued completion and returns how many were dispatched.
func (p *Port) RunOnce(ctx context.Context) (int, error) {
	for {
		if n := p.Poll(); n > 0 {
			return n, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-p.done:
			return 0, ErrPortClosed
		case <-p.ready:
		}
	}
}

// Poll dispatches the completions queued right now without waiting and
// returns how many were dispatched.
func (p *Port) Poll() int {
	n := 0
	for {
		c, ok := p.pop()
		if !ok {
			return n
		}
		p.dispatch(c)
		n++
	}
}

// Outstanding returns the number of operations in flight across all
// registered watchers.
func (p *Port) Outstanding() int {
	p.mu.Lock()
	watchers := make([]*Watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.mu.Unlock()

	n := 0
	for _, w := range watchers {
		n += w.Outstanding()
	}
	return n
}

// Close closes every watcher still registered, then the backend. Closing a
// watcher waits for its cancellation to be confirmed.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	watchers := make([]*Watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		watchers = append(watchers, w)
	}
	p.mu.Unlock()

	for _, w := range watchers {
		if err := w.Close(); err != nil {
			p.logger.Warn("failed to close watcher", "path", w.Path(), "error", err)
		}
	}

	p.qmu.Lock()
	p.queue = nil
	close(p.done)
	p.qmu.Unlock()

	if err := p.backend.Close(); err != nil {
		return fmt.Errorf("failed to close watcher backend: %w", err)
	}
	return nil
}

// register assigns a token to w.
func (p *Port) register(w *Watcher) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	p.nextToken++
	p.watchers[p.nextToken] = w
	return p.nextToken, nil
}

func (p *Port) unregister(token uint64) {
	p.mu.Lock()
	delete(p.watchers, token)
	p.mu.Unlock()
}

func (p *Port) lookup(token uint64) *Watcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchers[token]
}

// post queues c. It never blocks, so backends may call it from any context.
func (p *Port) post(c Completion) {
	p.qmu.Lock()
	select {
	case <-p.done:
		p.qmu.Unlock()
		return
	default:
	}
	p.queue = append(p.queue, c)
	p.qmu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *Port) pop() (Completion, bool) {
	p.qmu.Lock()
	defer p.qmu.Unlock()

	if len(p.queue) == 0 {
		return Completion{}, false
	}
	c := p.queue[0]
	p.queue[0] = Completion{}
	p.queue = p.queue[1:]
	return c, true
}

func (p *Port) dispatch(c Completion) {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()

	w := p.lookup(c.Token)
	if w == nil {
		p.logger.Debug("dropping completion for closed watcher", "token", c.Token)
		return
	}
	w.complete(c)
}
