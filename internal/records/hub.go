package records

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
)

type runFunc func(ctx context.Context, q Query) (Snapshot, error)

// liveQuery reruns its query whenever woken and hands the result to fn.
// Wakeups that arrive while a run is in progress collapse into one rerun.
type liveQuery struct {
	q      Query
	run    runFunc
	fn     func(Snapshot)
	wakeCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	hub    *hub
	once   sync.Once
}

func (l *liveQuery) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *liveQuery) loop(logger logging.Logger) {
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wakeCh:
		}
		snap, err := l.run(l.ctx, l.q)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			logger.Error(l.ctx, "live query failed", "collection", l.q.Collection, "error", err)
			continue
		}
		if l.ctx.Err() != nil {
			return
		}
		l.fn(snap)
	}
}

func (l *liveQuery) Close() error {
	l.once.Do(func() {
		l.cancel()
		l.hub.remove(l)
	})
	return nil
}

// hub tracks the live queries of one store.
type hub struct {
	logger logging.Logger

	mu      sync.Mutex
	subs    map[*liveQuery]struct{}
	closed  bool
	onEmpty func()
}

func newHub(logger logging.Logger) *hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &hub{logger: logger, subs: make(map[*liveQuery]struct{})}
}

func (h *hub) add(ctx context.Context, q Query, run runFunc, fn func(Snapshot)) (*liveQuery, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		fn = func(Snapshot) {}
	}
	lctx, cancel := context.WithCancel(ctx)
	l := &liveQuery{
		q:      q,
		run:    run,
		fn:     fn,
		wakeCh: make(chan struct{}, 1),
		ctx:    lctx,
		cancel: cancel,
		hub:    h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, common.ErrClosed
	}
	h.subs[l] = struct{}{}
	h.mu.Unlock()

	go l.loop(h.logger)
	// Stop with the parent context.
	go func() {
		<-lctx.Done()
		_ = l.Close()
	}()
	l.wake()
	return l, nil
}

func (h *hub) remove(l *liveQuery) {
	h.mu.Lock()
	_, ok := h.subs[l]
	delete(h.subs, l)
	empty := ok && len(h.subs) == 0
	onEmpty := h.onEmpty
	h.mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty()
	}
}

// wake reruns every live query over collection. An empty collection wakes
// all of them.
func (h *hub) wake(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.subs {
		if collection == "" || l.q.Collection == collection {
			l.wake()
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*liveQuery, 0, len(h.subs))
	for l := range h.subs {
		subs = append(subs, l)
	}
	h.onEmpty = nil
	h.mu.Unlock()

	for _, l := range subs {
		_ = l.Close()
	}
}
