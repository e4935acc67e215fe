package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/omnichannel-retail-orchestrator/pkg/logger"
)

const (
	defaultSubscriberBuffer = 64
	defaultRunBuffer        = 256
	defaultSinkTimeout      = 5 * time.Second
)

// Sink receives published events in run order, off the subscriber path. A
// sink that falls behind by more than the run buffer misses events.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

type Option func(*Publisher)

func WithSink(s Sink) Option {
	return func(p *Publisher) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

func WithSubscriberBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

type subscriber struct {
	ch      chan Event
	dropped atomic.Int64
}

// Publisher fans run events out to per-session subscribers. Each run gets a
// channel drained by its own goroutine, so emitting never waits on a slow
// subscriber or sink. A full buffer drops the event and counts the drop.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64

	sinks  []Sink
	buffer int
	log    zerolog.Logger
}

func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		subs:   make(map[string]map[uint64]*subscriber),
		buffer: defaultSubscriberBuffer,
		log:    logx.Component("events"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Subscribe streams events for sessionID until cancel is called or ctx ends.
func (p *Publisher) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, p.buffer)}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	if p.subs[sessionID] == nil {
		p.subs[sessionID] = make(map[uint64]*subscriber)
	}
	p.subs[sessionID][id] = sub
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[sessionID], id)
			if len(p.subs[sessionID]) == 0 {
				delete(p.subs, sessionID)
			}
			p.mu.Unlock()
			close(sub.ch)
			if n := sub.dropped.Load(); n > 0 {
				p.log.Warn().Str("session_id", sessionID).Int64("dropped", n).Msg("subscriber fell behind")
			}
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return sub.ch, func() {
		stop()
		cancel()
	}
}

// Begin opens the event channel of one run. Close must be called once the
// run is terminal; it returns after every accepted event has been delivered.
func (p *Publisher) Begin(sessionID, runID string) *RunChannel {
	rc := &RunChannel{
		sessionID: sessionID,
		runID:     runID,
		ch:        make(chan Event, defaultRunBuffer),
		sinkCh:    make(chan Event, defaultRunBuffer),
		done:      make(chan struct{}),
		sinkDone:  make(chan struct{}),
		log:       p.log,
	}
	go p.pump(rc)
	go p.drainSinks(rc)
	return rc
}

func (p *Publisher) pump(rc *RunChannel) {
	defer close(rc.done)
	defer close(rc.sinkCh)
	for e := range rc.ch {
		p.fanout(e)
		if len(p.sinks) == 0 {
			continue
		}
		select {
		case rc.sinkCh <- e:
		default:
			rc.dropped.Add(1)
		}
	}
}

func (p *Publisher) drainSinks(rc *RunChannel) {
	defer close(rc.sinkDone)
	for e := range rc.sinkCh {
		p.deliver(e)
	}
}

func (p *Publisher) fanout(e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sub := range p.subs[e.SessionID] {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (p *Publisher) deliver(e Event) {
	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSinkTimeout)
		if err := sink.Deliver(ctx, e); err != nil {
			p.log.Warn().Err(err).Str("run_id", e.RunID).Int64("seq", e.Seq).Msg("event sink failed")
		}
		cancel()
	}
}

// RunChannel is the ordered event stream of one run.
type RunChannel struct {
	sessionID string
	runID     string

	mu     sync.Mutex
	seq    int64
	closed bool
	ch     chan Event
	sinkCh chan Event

	done     chan struct{}
	sinkDone chan struct{}
	dropped  atomic.Int64
	log      zerolog.Logger
}

var _ Emitter = (*RunChannel)(nil)

func (rc *RunChannel) Emit(e Event) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.seq++
	e.Seq = rc.seq
	e.RunID = rc.runID
	e.SessionID = rc.sessionID
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case rc.ch <- e:
	default:
		rc.dropped.Add(1)
	}
}

// Dropped counts events this run lost to a full buffer.
func (rc *RunChannel) Dropped() int64 { return rc.dropped.Load() }

func (rc *RunChannel) Close() {
	rc.mu.Lock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
	rc.mu.Unlock()
	<-rc.done
	<-rc.sinkDone
	if n := rc.dropped.Load(); n > 0 {
		rc.log.Warn().Str("run_id", rc.runID).Int64("dropped", n).Msg("run events dropped")
	}
}
