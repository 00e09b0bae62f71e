// Package metrics aggregates iteration outcomes into per-metric statistics.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records iteration outcomes from many virtual users at once.
//
// Writes are spread over a fixed set of shards selected by VU ID. Each shard
// has its own lock and its own aggregates, so VUs on different shards never
// contend. Snapshot merges the shards one at a time into fresh aggregates,
// which keeps readers from blocking writers for longer than a single shard
// merge.
//
// Latency distributions are HDR histograms, so memory stays bounded no
// matter how many samples a soak run produces.
type Collector struct {
	config CollectorConfig
	shards []*shard

	// Active VU tracking
	activeVUs atomic.Int32

	// Requests recorded so far, kept outside the shards for cheap reads
	totalRequests atomic.Int64

	// Time-bucketed metrics store
	bucketStore *TimeBucketStore

	// Phase tracking
	mu           sync.RWMutex
	currentPhase Phase
	phaseHistory []PhaseChange
	startTime    time.Time

	// Background emitter
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	startOnce     sync.Once
	stopOnce      sync.Once
}

// shard is one independently locked slice of the aggregate state.
type shard struct {
	mu     sync.Mutex
	aggs   map[string]*aggregate
	checks map[string]*checkTally
}

// aggregate is the running state of one metric inside one shard. For a
// trend, min and max hold the exact extremes in microseconds; the
// histogram only answers percentiles.
type aggregate struct {
	typ   MetricType
	count int64
	sum   float64
	min   int64
	max   int64
	hist  *hdrhistogram.Histogram
}

type checkTally struct {
	passes int64
	fails  int64
}

// NewCollector creates a collector with the default configuration.
func NewCollector() *Collector {
	return NewCollectorWithConfig(DefaultCollectorConfig())
}

// NewCollectorWithConfig creates a collector with a custom configuration.
// Zero fields fall back to their defaults.
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	defaults := DefaultCollectorConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.MaxBuckets <= 0 {
		config.MaxBuckets = defaults.MaxBuckets
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if config.Shards <= 0 {
		config.Shards = runtime.GOMAXPROCS(0) * 2
		if config.Shards < 4 {
			config.Shards = 4
		}
	}

	c := &Collector{
		config:       config,
		shards:       make([]*shard, config.Shards),
		bucketStore:  NewTimeBucketStore(config.MaxBuckets),
		currentPhase: PhaseInit,
		startTime:    time.Now(),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			aggs:   make(map[string]*aggregate),
			checks: make(map[string]*checkTally),
		}
	}
	return c
}

// Start resets the run clock and starts the background time-bucket emitter.
// Calling Start more than once has no effect.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.startTime = time.Now()
		c.mu.Unlock()
		c.bucketStore.Reset()

		ctx, cancel := context.WithCancel(context.Background())
		c.emitterCancel = cancel
		c.emitterWg.Add(1)
		go c.runEmitter(ctx)
	})
}

// Stop stops the emitter and emits a final bucket. It is safe to call Stop
// on a collector that was never started.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		started := false
		c.startOnce.Do(func() {}) // prevent a later Start from spawning the emitter
		if c.emitterCancel != nil {
			c.emitterCancel()
			started = true
		}
		c.emitterWg.Wait()
		if started {
			c.emitBucket()
		}
	})
}

// Record aggregates one iteration outcome. It is safe for concurrent use.
func (c *Collector) Record(o Outcome) {
	s := c.shardFor(o.VUID)

	s.mu.Lock()
	for _, r := range o.Requests {
		s.add(c, HTTPReqs, 1)
		s.addDuration(c, HTTPReqDuration, r.Duration)
		s.addBool(c, HTTPReqFailed, r.Failed)
		s.add(c, DataReceived, float64(r.Bytes))
	}
	s.add(c, Iterations, 1)
	s.addDuration(c, IterationDuration, o.Duration)
	s.addBool(c, IterationFailed, !o.Success())
	for _, check := range o.Checks {
		s.addBool(c, Checks, check.Passed)
		tally, ok := s.checks[check.Name]
		if !ok {
			tally = &checkTally{}
			s.checks[check.Name] = tally
		}
		if check.Passed {
			tally.passes++
		} else {
			tally.fails++
		}
	}
	s.mu.Unlock()

	for _, r := range o.Requests {
		c.bucketStore.RecordRequest(!r.Failed)
	}
	c.totalRequests.Add(int64(len(o.Requests)))
}

func (c *Collector) shardFor(vuID int) *shard {
	if vuID < 0 {
		vuID = -vuID
	}
	return c.shards[vuID%len(c.shards)]
}

func (c *Collector) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(c.config.HistogramMin, c.config.HistogramMax, c.config.HistogramSigFigs)
}

// agg returns the aggregate for name, creating it on first use.
// The shard lock must be held.
func (s *shard) agg(c *Collector, name string) *aggregate {
	a, ok := s.aggs[name]
	if ok {
		return a
	}
	typ, known := LookupType(name)
	if !known {
		typ = Counter
	}
	a = &aggregate{typ: typ}
	if typ == Trend {
		a.hist = c.newHistogram()
	}
	s.aggs[name] = a
	return a
}

func (s *shard) add(c *Collector, name string, v float64) {
	a := s.agg(c, name)
	a.count++
	a.sum += v
}

func (s *shard) addBool(c *Collector, name string, v bool) {
	a := s.agg(c, name)
	a.count++
	if v {
		a.sum++
	}
}

func (s *shard) addDuration(c *Collector, name string, d time.Duration) {
	a := s.agg(c, name)
	micros := d.Microseconds()
	if micros < c.config.HistogramMin {
		micros = c.config.HistogramMin
	}
	if micros > c.config.HistogramMax {
		micros = c.config.HistogramMax
	}
	// RecordValue only fails for out-of-range values, which were clamped above.
	_ = a.hist.RecordValue(micros)
	if a.count == 0 || micros < a.min {
		a.min = micros
	}
	if a.count == 0 || micros > a.max {
		a.max = micros
	}
	a.count++
	a.sum += float64(micros)
}

// Snapshot returns an immutable point-in-time view of every metric.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	startTime := c.startTime
	phase := c.currentPhase
	c.mu.RUnlock()

	now := time.Now()
	snap := &Snapshot{
		Metrics:   make(map[string]*Metric),
		ActiveVUs: c.ActiveVUs(),
		Phase:     phase,
		StartTime: startTime,
		Elapsed:   now.Sub(startTime),
		Timestamp: now,
	}

	checks := make(map[string]*CheckStats)
	for _, s := range c.shards {
		s.mu.Lock()
		for name, a := range s.aggs {
			m, ok := snap.Metrics[name]
			if !ok {
				m = &Metric{Name: name, Type: a.typ, elapsed: snap.Elapsed}
				if a.typ == Trend {
					m.hist = c.newHistogram()
				}
				snap.Metrics[name] = m
			}
			if a.hist != nil && a.count > 0 {
				if m.Count == 0 || a.min < m.min {
					m.min = a.min
				}
				if m.Count == 0 || a.max > m.max {
					m.max = a.max
				}
				m.hist.Merge(a.hist)
			}
			m.Count += a.count
			m.Sum += a.sum
		}
		for name, t := range s.checks {
			cs, ok := checks[name]
			if !ok {
				cs = &CheckStats{Name: name}
				checks[name] = cs
			}
			cs.Passes += t.passes
			cs.Fails += t.fails
		}
		s.mu.Unlock()
	}

	snap.Checks = sortedChecks(checks)
	return snap
}

// SetPhase updates the current test phase.
func (c *Collector) SetPhase(phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentPhase == phase {
		return
	}

	c.currentPhase = phase
	c.phaseHistory = append(c.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  c.totalRequests.Load(),
	})
}

// Phase returns the current test phase.
func (c *Collector) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentPhase
}

// PhaseHistory returns the history of phase changes.
func (c *Collector) PhaseHistory() []PhaseChange {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]PhaseChange, len(c.phaseHistory))
	copy(result, c.phaseHistory)
	return result
}

// SetActiveVUs updates the active VU count.
func (c *Collector) SetActiveVUs(count int) {
	c.activeVUs.Store(int32(count))
}

// ActiveVUs returns the current active VU count.
func (c *Collector) ActiveVUs() int {
	return int(c.activeVUs.Load())
}

// TimeSeries returns all time-series buckets.
func (c *Collector) TimeSeries() []*TimeBucket {
	return c.bucketStore.GetBuckets()
}

// LatestBucket returns the most recent time bucket, or nil before the
// first interval has elapsed.
func (c *Collector) LatestBucket() *TimeBucket {
	return c.bucketStore.GetLatestBucket()
}

// TotalRequests returns the number of requests recorded so far without
// building a snapshot.
func (c *Collector) TotalRequests() int64 {
	return c.totalRequests.Load()
}

// SteadyStateRPS returns the average request rate over the steady phase.
func (c *Collector) SteadyStateRPS() float64 {
	rps, _ := c.bucketStore.SteadyStateRPS()
	return rps
}

// runEmitter runs the background time-bucket emitter.
func (c *Collector) runEmitter(ctx context.Context) {
	defer c.emitterWg.Done()

	ticker := time.NewTicker(c.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.emitBucket()
		}
	}
}

func (c *Collector) emitBucket() {
	c.bucketStore.CreateBucket(c.Snapshot())
}
