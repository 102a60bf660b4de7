package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/pkg/weatherapi"
	"github.com/NomadCrew/nomad-weather/types"
	"go.uber.org/zap"
)

// Policy decides what happens when a request starts while another is in flight.
type Policy string

const (
	// PolicyLastWriteWins lets every call finish; whichever resolves last owns the state.
	PolicyLastWriteWins Policy = "last_write_wins"
	// PolicyCancelAndReplace cancels the in-flight call and drops its result.
	PolicyCancelAndReplace Policy = "cancel_and_replace"
)

// ErrCoordinatorClosed is returned by Request after Close.
var ErrCoordinatorClosed = errors.New("weather coordinator is closed")

// StatePublisher forwards transitions to observers outside this process.
type StatePublisher interface {
	PublishState(ctx context.Context, sessionID string, state types.WeatherState) error
}

type CoordinatorOptions struct {
	SessionID        string
	Policy           Policy
	SubscriberBuffer int
	ForwardBuffer    int
	Publisher        StatePublisher
	PublishTimeout   time.Duration
}

func (o *CoordinatorOptions) applyDefaults() {
	if o.Policy == "" {
		o.Policy = PolicyLastWriteWins
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 16
	}
	if o.ForwardBuffer <= 0 {
		o.ForwardBuffer = 64
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
}

type subscriber struct {
	ch   chan types.WeatherState
	done chan struct{}
	once sync.Once
}

// offer delivers st without blocking, evicting the oldest pending value when
// the buffer is full. Callers hold the coordinator lock.
func (s *subscriber) offer(st types.WeatherState) (dropped int) {
	for {
		select {
		case s.ch <- st:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
}

// WeatherCoordinator owns one FetchState cell. Request moves it to Loading and
// starts a weather API call whose outcome becomes the next value. Observers
// subscribe to the sequence of values.
type WeatherCoordinator struct {
	client  weatherapi.ClientInterface
	opts    CoordinatorOptions
	log     *zap.SugaredLogger
	metrics *coordinatorMetrics

	mu        sync.Mutex
	state     types.WeatherState
	hasState  bool
	seq       uint64
	inFlight  context.CancelFunc
	subs      map[uint64]*subscriber
	nextSubID uint64
	closed    bool
	pending   int
	idle      *sync.Cond

	baseCtx    context.Context
	baseCancel context.CancelFunc
	fetches    sync.WaitGroup

	forwardCh   chan types.WeatherState
	forwardDone chan struct{}
}

func NewWeatherCoordinator(client weatherapi.ClientInterface, opts CoordinatorOptions) *WeatherCoordinator {
	opts.applyDefaults()
	baseCtx, baseCancel := context.WithCancel(context.Background())

	c := &WeatherCoordinator{
		client:     client,
		opts:       opts,
		log:        logger.GetLogger().Named("coordinator").With("session_id", opts.SessionID),
		metrics:    newCoordinatorMetrics(),
		subs:       make(map[uint64]*subscriber),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	c.idle = sync.NewCond(&c.mu)

	if opts.Publisher != nil {
		c.forwardCh = make(chan types.WeatherState, opts.ForwardBuffer)
		c.forwardDone = make(chan struct{})
		go c.forward()
	}

	c.metrics.activeCoordinators.Inc()
	return c
}

// Policy returns the concurrency policy in effect.
func (c *WeatherCoordinator) Policy() Policy {
	return c.opts.Policy
}

// Request publishes Loading for query before returning, then fetches in the background.
func (c *WeatherCoordinator) Request(query string) (types.WeatherState, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Warnw("Request on closed coordinator ignored", "query", query)
		return types.WeatherState{}, ErrCoordinatorClosed
	}

	c.seq++
	seq := c.seq

	if c.opts.Policy == PolicyCancelAndReplace && c.inFlight != nil {
		c.inFlight()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	if c.opts.Policy == PolicyCancelAndReplace {
		c.inFlight = cancel
	}

	loading := types.Loading[types.WeatherPayload](seq, query)
	c.publishLocked(loading)
	c.fetches.Add(1)
	c.pending++
	c.mu.Unlock()

	go c.fetch(ctx, cancel, seq, query)
	return loading, nil
}

func (c *WeatherCoordinator) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64, query string) {
	defer c.fetches.Done()
	defer c.settle()
	defer cancel()

	start := time.Now()
	resp, err := c.client.GetCurrent(ctx, query)
	c.metrics.requestLatency.Observe(time.Since(start).Seconds())

	var next types.WeatherState
	var outcome string
	switch {
	case err != nil:
		outcome = OutcomeTransportError
		if errors.Is(err, weatherapi.ErrDecode) {
			outcome = OutcomeDecodeError
		}
		c.log.Warnw("Weather request failed", "seq", seq, "query", query, "error", err)
		next = types.Failure[types.WeatherPayload](seq, query, types.ErrorMessageLoadFailed)
	case !resp.IsSuccessful():
		outcome = OutcomeUpstreamStatus
		c.log.Infow("Weather API rejected request", "seq", seq, "query", query, "status", resp.StatusCode)
		next = types.Failure[types.WeatherPayload](seq, query, types.ErrorMessageLoadFailed)
	case resp.Body == nil:
		// A successful call without a document produces no transition.
		c.metrics.requests.WithLabelValues(OutcomeEmptyBody).Inc()
		c.log.Debugw("Weather API returned empty body, state left unchanged", "seq", seq, "query", query)
		return
	default:
		outcome = OutcomeSuccess
		next = types.Success(seq, query, resp.Body)
	}

	c.complete(seq, next, outcome)
}

func (c *WeatherCoordinator) complete(seq uint64, next types.WeatherState, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.metrics.requests.WithLabelValues(OutcomeDiscarded).Inc()
		return
	}
	if c.opts.Policy == PolicyCancelAndReplace {
		if seq != c.seq {
			c.metrics.requests.WithLabelValues(OutcomeSuperseded).Inc()
			c.log.Debugw("Dropping superseded result", "seq", seq, "latest", c.seq)
			return
		}
		c.inFlight = nil
	}

	c.metrics.requests.WithLabelValues(outcome).Inc()
	c.publishLocked(next)
}

func (c *WeatherCoordinator) settle() {
	c.mu.Lock()
	c.pending--
	if c.pending == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

// Wait blocks until no request is in flight. Every transition those requests
// produced has been delivered to subscriber buffers when it returns.
func (c *WeatherCoordinator) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending > 0 {
		c.idle.Wait()
	}
}

// publishLocked replaces the state and fans it out. Callers hold c.mu.
func (c *WeatherCoordinator) publishLocked(st types.WeatherState) {
	c.state = st
	c.hasState = true

	for _, sub := range c.subs {
		if n := sub.offer(st); n > 0 {
			c.metrics.droppedTransitions.WithLabelValues(dropSubscriberFull).Add(float64(n))
		}
	}

	if c.forwardCh != nil {
		select {
		case c.forwardCh <- st:
		default:
			c.metrics.droppedTransitions.WithLabelValues(dropForwardFull).Inc()
			c.log.Warnw("Forward buffer full, transition not forwarded", "seq", st.Seq, "status", st.Status)
		}
	}
}

func (c *WeatherCoordinator) forward() {
	defer close(c.forwardDone)
	for st := range c.forwardCh {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.PublishTimeout)
		if err := c.opts.Publisher.PublishState(ctx, c.opts.SessionID, st); err != nil {
			c.log.Errorw("Failed to forward state", "seq", st.Seq, "status", st.Status, "error", err)
		}
		cancel()
	}
}

// State returns the current value; ok is false before the first request.
func (c *WeatherCoordinator) State() (types.WeatherState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.hasState
}

// Subscribe registers an observer. The current value, if any, is delivered
// first. The channel is closed on unsubscribe, when ctx ends, or on Close.
func (c *WeatherCoordinator) Subscribe(ctx context.Context) (<-chan types.WeatherState, func()) {
	sub := &subscriber{
		ch:   make(chan types.WeatherState, c.opts.SubscriberBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	if c.hasState {
		sub.ch <- c.state
	}
	c.subs[id] = sub
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			c.closeSubscriber(sub)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()

	return sub.ch, unsubscribe
}

func (c *WeatherCoordinator) closeSubscriber(sub *subscriber) {
	sub.once.Do(func() {
		close(sub.ch)
		close(sub.done)
	})
}

// SubscriberCount returns the number of registered observers.
func (c *WeatherCoordinator) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close discards the state, closes every subscription, cancels in-flight calls
// and waits for them to return. Later calls are no-ops.
func (c *WeatherCoordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = types.WeatherState{}
	c.hasState = false
	for id, sub := range c.subs {
		delete(c.subs, id)
		c.closeSubscriber(sub)
	}
	if c.forwardCh != nil {
		close(c.forwardCh)
	}
	c.mu.Unlock()

	c.baseCancel()
	c.fetches.Wait()
	if c.forwardDone != nil {
		<-c.forwardDone
	}

	c.metrics.activeCoordinators.Dec()
	c.log.Debug("Coordinator closed")
}
