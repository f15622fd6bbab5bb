// Package pool provides named, capacity-bounded collections of database
// handles with round-robin checkout. Pools grow lazily: a slot is only
// materialized the first time the round-robin cursor lands on it, so a
// pool's size can stay below its capacity until demand actually arrives.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dbx/pkg/apperrors"
	"github.com/ekaya-inc/dbx/pkg/driver"
	"github.com/ekaya-inc/dbx/pkg/handle"
	"github.com/ekaya-inc/dbx/pkg/logging"
)

// DefaultMax is the handle capacity used when none is given.
const DefaultMax = 5

// Pool is a capacity-bounded, round-robin-allocated set of handles sharing
// one connector. Every public operation runs under the pool's single lock,
// so pool operations serialize; a slow driver call inside one operation
// stalls the others. That trade-off buys straightforward correctness.
type Pool struct {
	name      string
	connector driver.Connector
	logger    *zap.Logger

	mu        sync.Mutex
	handles   []*handle.Handle // nil entries are unfilled slots
	max       int
	cursor    int
	checkouts uint64
}

// New creates a pool. max <= 0 falls back to DefaultMax. The pool is not
// registered anywhere; see Registry.Register.
func New(name string, connector driver.Connector, max int, logger *zap.Logger) *Pool {
	if max <= 0 {
		max = DefaultMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		name:      name,
		connector: connector,
		max:       max,
		logger:    logger,
	}
}

// Name returns the pool's registry key.
func (p *Pool) Name() string { return p.name }

// Max returns the current handle capacity.
func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// Size returns the number of materialized handles (unfilled slots excluded).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizeLocked()
}

func (p *Pool) sizeLocked() int {
	n := 0
	for _, h := range p.handles {
		if h != nil {
			n++
		}
	}
	return n
}

// Get checks out a handle round-robin. When the cursor lands on an unfilled
// slot, a new handle is created from the connector; when it lands on a
// disconnected handle, the handle is reconnected in place. This is the only
// path that backfills unfilled slots.
func (p *Pool) Get(ctx context.Context) (*handle.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.max <= 0 {
		return nil, fmt.Errorf("pool %s has zero capacity: %w", p.name, apperrors.ErrPoolCapacity)
	}
	if p.cursor >= p.max {
		p.cursor = 0
	}
	idx := p.cursor

	// A shrink can leave the cursor beyond the slice; pad with unfilled
	// slots up to the cursor so slot indices stay stable.
	for idx >= len(p.handles) {
		p.handles = append(p.handles, nil)
	}

	if h := p.handles[idx]; h == nil {
		conn, err := p.connector.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("pool %s: fill slot %d: %w", p.name, idx, err)
		}
		p.handles[idx] = handle.New(conn, p.logger)
		p.logger.Debug("pool slot filled",
			zap.String("pool", p.name),
			zap.Int("slot", idx),
		)
	} else if !h.Connected() {
		if err := h.Reconnect(ctx); err != nil {
			return nil, fmt.Errorf("pool %s: reconnect slot %d: %w", p.name, idx, err)
		}
	}

	h := p.handles[idx]
	p.cursor++
	p.checkouts++
	return h, nil
}

// Add appends a handle. It exists for pool-internal growth and tests;
// normal acquisition goes through Get. Fails with apperrors.ErrPoolCapacity
// before any mutation when the pool is full, and with
// apperrors.ErrInvalidHandle for a nil handle.
func (p *Pool) Add(h *handle.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(h)
}

func (p *Pool) addLocked(h *handle.Handle) error {
	if h == nil {
		return apperrors.ErrInvalidHandle
	}
	if len(p.handles) >= p.max {
		return fmt.Errorf("pool %s: %d handles, max %d: %w",
			p.name, len(p.handles), p.max, apperrors.ErrPoolCapacity)
	}
	p.handles = append(p.handles, h)
	return nil
}

// AddConnection creates a new handle from the pool's connector and appends
// it through the capacity-checked Add path.
func (p *Pool) AddConnection(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.handles) >= p.max {
		return fmt.Errorf("pool %s: %w", p.name, apperrors.ErrPoolCapacity)
	}
	conn, err := p.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("pool %s: connect: %w", p.name, err)
	}
	return p.addLocked(handle.New(conn, p.logger))
}

// Remove drops the handle from pool bookkeeping by identity. No-op when the
// handle is not in the pool. The handle is not disconnected; that remains
// the caller's responsibility.
func (p *Pool) Remove(h *handle.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, cur := range p.handles {
		if cur == h {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			return
		}
	}
}

// Resize changes the pool's capacity and returns the handles that no longer
// fit. Connected handles are preferred over disconnected ones: when the new
// capacity still has room after keeping every connected handle, disconnected
// handles top it up in original order; when connected handles alone exceed
// the new capacity, only the first max of them survive and every
// disconnected handle is rejected. Rejected handles are removed from
// bookkeeping only, never disconnected. A negative max is treated as zero.
// Resize itself never fails.
func (p *Pool) Resize(max int) []*handle.Handle {
	if max < 0 {
		max = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var orig, connected, disconnected []*handle.Handle
	for _, h := range p.handles {
		if h == nil {
			continue
		}
		orig = append(orig, h)
		if h.Connected() {
			connected = append(connected, h)
		} else {
			disconnected = append(disconnected, h)
		}
	}

	var kept []*handle.Handle
	if len(connected) < max {
		kept = append(kept, connected...)
		for _, h := range disconnected {
			if len(kept) >= max {
				break
			}
			kept = append(kept, h)
		}
	} else {
		kept = append(kept, connected[:max]...)
	}

	keptSet := make(map[*handle.Handle]struct{}, len(kept))
	for _, h := range kept {
		keptSet[h] = struct{}{}
	}
	var rejected []*handle.Handle
	for _, h := range orig {
		if _, ok := keptSet[h]; !ok {
			rejected = append(rejected, h)
		}
	}

	p.max = max
	p.handles = kept
	p.logger.Info("pool resized",
		zap.String("pool", p.name),
		zap.Int("max", max),
		zap.Int("kept", len(kept)),
		zap.Int("rejected", len(rejected)),
	)
	return rejected
}

// Ping reconnects any disconnected handles, then averages the handles' ping
// values. A ping of zero counts as 1, and the accumulator starts at 1
// rather than 0; that bias is historical and is kept for behavioral
// compatibility with existing deployments. The mean is truncated toward
// zero. An empty pool fails with apperrors.ErrPoolEmpty.
func (p *Pool) Ping(ctx context.Context) (float64, error) {
	if err := p.ReconnectIfDisconnected(ctx); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sum := 1.0
	count := 0
	for _, h := range p.handles {
		if h == nil {
			continue
		}
		v, err := h.Ping(ctx)
		if err != nil {
			return 0, fmt.Errorf("pool %s: ping: %w", p.name, err)
		}
		if v == 0 {
			v = 1
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("pool %s: %w", p.name, apperrors.ErrPoolEmpty)
	}
	return math.Trunc(sum / float64(count)), nil
}

// Reconnect unconditionally reconnects every handle. Individual failures
// are joined; iteration continues past them.
func (p *Pool) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, h := range p.handles {
		if h == nil {
			continue
		}
		if err := h.Reconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReconnectIfDisconnected reconnects only handles whose connection flag is
// down.
func (p *Pool) ReconnectIfDisconnected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, h := range p.handles {
		if h == nil || h.Connected() {
			continue
		}
		if err := h.Reconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect disconnects every handle. Individual failures are joined;
// iteration continues past them.
func (p *Pool) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, h := range p.handles {
		if h == nil {
			continue
		}
		if err := h.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %s",
				h.ID(), logging.SanitizeError(err)))
		}
	}
	return errors.Join(errs...)
}

// Stats is a point-in-time snapshot for observability surfaces.
type Stats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Max       int    `json:"max"`
	Connected int    `json:"connected"`
	Checkouts uint64 `json:"checkouts"`
}

// GetStats returns a snapshot of the pool's state.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Name:      p.name,
		Max:       p.max,
		Checkouts: p.checkouts,
	}
	for _, h := range p.handles {
		if h == nil {
			continue
		}
		s.Size++
		if h.Connected() {
			s.Connected++
		}
	}
	return s
}
