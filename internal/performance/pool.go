package performance

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/volley/internal/performance/metrics"
)

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// PerVUClient gives every VU its own client and connection pool
	PerVUClient bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates an HTTP client with the configured settings.
func (c HTTPClientConfig) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.MaxIdleConns,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		MaxConnsPerHost:     c.MaxConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		DisableKeepAlives:   c.DisableKeepAlives,
	}
	if c.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Factory   ScenarioFactory
	Collector *metrics.Collector
	ThinkTime ThinkTime
	HTTP      HTTPClientConfig
	BaseURL   string
	Vars      map[string]string
	Logger    logrus.FieldLogger
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Active                int   `json:"active"`
	Stopping              int   `json:"stopping"`
	Spawned               int64 `json:"spawned"`
	SpawnErrors           int64 `json:"spawnErrors"`
	CompletedIterations   int64 `json:"completedIterations"`
	InterruptedIterations int64 `json:"interruptedIterations"`
}

// Pool owns the virtual users of a run and scales them to a target.
//
// Only slot bookkeeping is guarded by the pool mutex. Iterations run on the
// VU goroutines without touching it.
type Pool struct {
	cfg          PoolConfig
	logger       logrus.FieldLogger
	sharedClient *http.Client

	mu       sync.Mutex
	slots    []*slot // in start order
	nextID   int
	draining bool

	// runCtx is cancelled on hard stop.
	runCtx     context.Context
	hardCancel context.CancelFunc
	wg         sync.WaitGroup

	spawned     atomic.Int64
	spawnErrors atomic.Int64
	completed   atomic.Int64
	interrupted atomic.Int64
}

type slot struct {
	vu     *VirtualUser
	client *http.Client

	// retired is set once the pool asked this VU to stop. Guarded by Pool.mu.
	retired bool

	// terminated is set when the scenario ended the VU on its own.
	terminated atomic.Bool
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}

	runCtx, hardCancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		logger:     logger,
		runCtx:     runCtx,
		hardCancel: hardCancel,
	}
	if !cfg.HTTP.PerVUClient {
		p.sharedClient = cfg.HTTP.NewHTTPClient()
	}
	return p
}

// Reconcile starts or retires VUs so the number of live VUs matches target.
// Excess VUs are retired newest first and finish their current iteration.
// VUs whose scenario terminated keep their slot and are not replaced.
// ctx only bounds the spawning work. It returns the live VU count.
func (p *Pool) Reconcile(ctx context.Context, target int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.draining {
		return p.liveLocked()
	}

	p.pruneLocked()

	live := p.liveLocked()
	switch {
	case target > live:
		for i := live; i < target; i++ {
			if ctx.Err() != nil {
				break
			}
			if err := p.spawnLocked(); err != nil {
				p.spawnErrors.Add(1)
				p.logger.WithError(err).Error("failed to start virtual user")
				break
			}
		}
	case target < live:
		excess := live - target
		for i := len(p.slots) - 1; i >= 0 && excess > 0; i-- {
			s := p.slots[i]
			if s.retired {
				continue
			}
			s.retired = true
			s.vu.RequestStop()
			excess--
		}
	}

	return p.liveLocked()
}

// liveLocked counts slots that have not been retired.
func (p *Pool) liveLocked() int {
	n := 0
	for _, s := range p.slots {
		if !s.retired {
			n++
		}
	}
	return n
}

// pruneLocked drops retired slots whose goroutine has exited.
func (p *Pool) pruneLocked() {
	kept := p.slots[:0]
	for _, s := range p.slots {
		if s.retired && s.vu.State() == VUStateStopped {
			if s.client != nil {
				s.client.CloseIdleConnections()
			}
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(p.slots); i++ {
		p.slots[i] = nil
	}
	p.slots = kept
}

func (p *Pool) spawnLocked() error {
	p.nextID++
	id := p.nextID

	client := p.sharedClient
	var own *http.Client
	if client == nil {
		own = p.cfg.HTTP.NewHTTPClient()
		client = own
	}

	env := &VUEnv{
		VUID:    id,
		Client:  client,
		BaseURL: p.cfg.BaseURL,
		Vars:    p.cfg.Vars,
		Logger:  p.logger.WithField("vu", id),
	}
	scenario, err := p.cfg.Factory(env)
	if err != nil {
		return err
	}

	s := &slot{
		vu:     NewVirtualUser(id, scenario, p.cfg.Collector, p.cfg.ThinkTime, p.logger),
		client: own,
	}
	p.slots = append(p.slots, s)
	p.spawned.Add(1)

	p.wg.Add(1)
	go p.runVU(s)
	return nil
}

// runVU runs a VU until it is stopped, interrupted or its scenario ends.
func (p *Pool) runVU(s *slot) {
	defer p.wg.Done()
	defer s.vu.MarkStopped()

	vu := s.vu
	for {
		if vu.StopRequested() || p.runCtx.Err() != nil {
			return
		}

		_, err := vu.RunIteration(p.runCtx)
		switch {
		case err == nil:
			p.completed.Add(1)
		case errors.Is(err, ErrScenarioDone):
			p.completed.Add(1)
			s.terminated.Store(true)
			return
		case errors.Is(err, ErrInterrupted):
			p.interrupted.Add(1)
			return
		default:
			return
		}

		if !vu.Pause(p.runCtx) {
			return
		}
	}
}

// Active returns the number of VUs that are idle or inside an iteration.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, s := range p.slots {
		switch s.vu.State() {
		case VUStateIdle, VUStateRunning:
			n++
		}
	}
	return n
}

// Exhausted reports whether every live VU was ended by its scenario, so no
// further iterations will run.
func (p *Pool) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := 0
	for _, s := range p.slots {
		if s.retired {
			continue
		}
		live++
		if !s.terminated.Load() {
			return false
		}
	}
	return live > 0
}

// Drain stops all VUs. VUs finish their current iteration unless timeout
// elapses first, in which case in-flight iterations are cancelled and not
// recorded. It reports whether every VU stopped within timeout. After Drain
// the pool no longer spawns VUs.
func (p *Pool) Drain(timeout time.Duration) bool {
	p.mu.Lock()
	p.draining = true
	for _, s := range p.slots {
		s.retired = true
		s.vu.RequestStop()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	graceful := true
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		graceful = false
		p.logger.WithField("graceful_stop", timeout).Warn("graceful stop timed out, interrupting iterations")
		p.hardCancel()
		<-done
	}
	p.hardCancel()

	p.mu.Lock()
	for _, s := range p.slots {
		if s.client != nil {
			s.client.CloseIdleConnections()
		}
	}
	p.mu.Unlock()
	if p.sharedClient != nil {
		p.sharedClient.CloseIdleConnections()
	}

	return graceful
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	var active, stopping int
	for _, s := range p.slots {
		switch s.vu.State() {
		case VUStateIdle, VUStateRunning:
			active++
		case VUStateStopping:
			stopping++
		}
	}
	p.mu.Unlock()

	return PoolStats{
		Active:                active,
		Stopping:              stopping,
		Spawned:               p.spawned.Load(),
		SpawnErrors:           p.spawnErrors.Load(),
		CompletedIterations:   p.completed.Load(),
		InterruptedIterations: p.interrupted.Load(),
	}
}
