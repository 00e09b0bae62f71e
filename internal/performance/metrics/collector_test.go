package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func outcome(vu int, d time.Duration, failed bool) Outcome {
	return Outcome{
		VUID:     vu,
		Duration: d,
		Requests: []RequestSample{{Name: "req", Duration: d, Status: 200, Bytes: 100, Failed: failed}},
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	snap := c.Snapshot()
	if snap.TotalRequests() != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snap.TotalRequests())
	}
	if snap.Phase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snap.Phase, PhaseInit)
	}
	if len(snap.Metrics) != 0 {
		t.Errorf("Initial metrics = %d, want 0", len(snap.Metrics))
	}
}

func TestCollector_Record(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	c.Record(outcome(1, 10*time.Millisecond, false))
	c.Record(outcome(2, 20*time.Millisecond, false))
	c.Record(outcome(3, 30*time.Millisecond, true))

	snap := c.Snapshot()

	if got := snap.TotalRequests(); got != 3 {
		t.Errorf("TotalRequests = %d, want 3", got)
	}
	if got := snap.FailedRequests(); got != 1 {
		t.Errorf("FailedRequests = %d, want 1", got)
	}
	if got := snap.TotalBytes(); got != 300 {
		t.Errorf("TotalBytes = %d, want 300", got)
	}
	if got := snap.TotalIterations(); got != 3 {
		t.Errorf("TotalIterations = %d, want 3", got)
	}

	failed, ok := snap.Metric(IterationFailed)
	if !ok {
		t.Fatal("iteration_failed not recorded")
	}
	if failed.Count != 3 || failed.Sum != 1 {
		t.Errorf("iteration_failed = %v/%v, want 1/3", failed.Sum, failed.Count)
	}
}

func TestCollector_ErrorRateAcrossShards(t *testing.T) {
	c := NewCollectorWithConfig(CollectorConfig{Shards: 4})
	defer c.Stop()

	for i := 0; i < 100; i++ {
		c.Record(outcome(i, 5*time.Millisecond, i < 2))
	}

	snap := c.Snapshot()
	if got := snap.ErrorRate(); got != 0.02 {
		t.Errorf("ErrorRate = %v, want 0.02", got)
	}
}

func TestCollector_ScenarioErrorFailsIteration(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	c.Record(Outcome{VUID: 1, Duration: time.Millisecond, Err: errors.New("boom")})

	snap := c.Snapshot()
	m, ok := snap.Metric(IterationFailed)
	if !ok {
		t.Fatal("iteration_failed not recorded")
	}
	if m.Rate() != 1 {
		t.Errorf("iteration_failed rate = %v, want 1", m.Rate())
	}
	if _, ok := snap.Metric(HTTPReqs); ok {
		t.Error("http_reqs recorded for an iteration without requests")
	}
}

func TestCollector_LatencyPercentiles(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	for i := 1; i <= 10; i++ {
		c.Record(outcome(i, time.Duration(i*10)*time.Millisecond, false))
	}

	snap := c.Snapshot()
	lat := snap.Latency()

	// HDR histogram binning allows some tolerance
	if lat.P50 < 40*time.Millisecond || lat.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", lat.P50)
	}
	if lat.P99 < 90*time.Millisecond || lat.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms", lat.P99)
	}
	if lat.Count != 10 {
		t.Errorf("Count = %d, want 10", lat.Count)
	}

	m, _ := snap.Metric(HTTPReqDuration)
	if p := m.Percentile(95); p < 95 || p > 101 {
		t.Errorf("p(95) = %vms, want ~100ms", p)
	}
	if avg := m.Avg(); avg < 54 || avg > 56 {
		t.Errorf("avg = %vms, want ~55ms", avg)
	}
}

func TestCollector_ExactExtremesAcrossShards(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	// Spread over VUs so the extremes live on different shards.
	durations := []time.Duration{500 * time.Millisecond, 123457 * time.Microsecond, 999999 * time.Microsecond, 500 * time.Millisecond}
	for i, d := range durations {
		c.Record(outcome(i, d, false))
	}

	m, _ := c.Snapshot().Metric(HTTPReqDuration)
	if got := m.Min(); got != 123.457 {
		t.Errorf("min = %vms, want 123.457ms", got)
	}
	if got := m.Max(); got != 999.999 {
		t.Errorf("max = %vms, want 999.999ms", got)
	}
	if got, want := m.Avg(), (500000+123457+999999+500000)/4.0/1000; got != want {
		t.Errorf("avg = %vms, want %vms", got, want)
	}
	if got := m.Percentile(100); got > m.Max() {
		t.Errorf("p(100) = %vms exceeds max %vms", got, m.Max())
	}
	if got := m.Percentile(0); got < m.Min() {
		t.Errorf("p(0) = %vms is below min %vms", got, m.Min())
	}

	lat := c.Snapshot().Latency()
	if lat.Min != 123457*time.Microsecond || lat.Max != 999999*time.Microsecond {
		t.Errorf("latency min/max = %v/%v", lat.Min, lat.Max)
	}
}

func TestCollector_Checks(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	c.Record(Outcome{VUID: 1, Checks: []CheckResult{{Name: "status is 200", Passed: true}, {Name: "body ok", Passed: false}}})
	c.Record(Outcome{VUID: 2, Checks: []CheckResult{{Name: "status is 200", Passed: true}}})

	snap := c.Snapshot()
	if len(snap.Checks) != 2 {
		t.Fatalf("Checks = %d, want 2", len(snap.Checks))
	}
	// sorted by name
	if snap.Checks[0].Name != "body ok" || snap.Checks[0].Fails != 1 {
		t.Errorf("Checks[0] = %+v", snap.Checks[0])
	}
	if snap.Checks[1].Passes != 2 || snap.Checks[1].Rate() != 1 {
		t.Errorf("Checks[1] = %+v", snap.Checks[1])
	}

	m, _ := snap.Metric(Checks)
	if got := m.Rate(); got < 0.66 || got > 0.67 {
		t.Errorf("checks rate = %v, want ~0.667", got)
	}
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	const vus = 50
	const iterations = 200

	var wg sync.WaitGroup
	for vu := 0; vu < vus; vu++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				c.Record(outcome(id, time.Millisecond, false))
				if i%50 == 0 {
					_ = c.Snapshot()
				}
			}
		}(vu)
	}
	wg.Wait()

	if got := c.Snapshot().TotalRequests(); got != vus*iterations {
		t.Errorf("TotalRequests = %d, want %d", got, vus*iterations)
	}
}

func TestCollector_SnapshotIsImmutable(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	c.Record(outcome(1, 10*time.Millisecond, false))
	snap := c.Snapshot()

	c.Record(outcome(1, 500*time.Millisecond, false))

	if snap.TotalRequests() != 1 {
		t.Errorf("snapshot TotalRequests changed to %d", snap.TotalRequests())
	}
	m, _ := snap.Metric(HTTPReqDuration)
	if m.Max() > 11 {
		t.Errorf("snapshot max = %vms, want ~10ms", m.Max())
	}
}

func TestCollector_Phases(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	c.SetPhase(PhaseRampUp)
	c.SetPhase(PhaseRampUp)
	c.SetPhase(PhaseSteady)

	if c.Phase() != PhaseSteady {
		t.Errorf("Phase = %v, want %v", c.Phase(), PhaseSteady)
	}
	history := c.PhaseHistory()
	if len(history) != 2 {
		t.Fatalf("PhaseHistory length = %d, want 2", len(history))
	}
	if history[0].Phase != PhaseRampUp || history[1].Phase != PhaseSteady {
		t.Errorf("PhaseHistory = %+v", history)
	}
}

func TestCollector_ActiveVUs(t *testing.T) {
	c := NewCollector()
	defer c.Stop()

	c.SetActiveVUs(7)
	if c.ActiveVUs() != 7 {
		t.Errorf("ActiveVUs = %d, want 7", c.ActiveVUs())
	}
	if c.Snapshot().ActiveVUs != 7 {
		t.Errorf("Snapshot ActiveVUs = %d, want 7", c.Snapshot().ActiveVUs)
	}
}

func TestCollector_Emitter(t *testing.T) {
	c := NewCollectorWithConfig(CollectorConfig{BucketInterval: 20 * time.Millisecond})
	c.Start()
	c.Start()

	c.Record(outcome(1, time.Millisecond, false))
	time.Sleep(70 * time.Millisecond)
	c.Stop()
	c.Stop()

	buckets := c.TimeSeries()
	if len(buckets) < 2 {
		t.Fatalf("buckets = %d, want at least 2", len(buckets))
	}
	last := buckets[len(buckets)-1]
	if last.TotalRequests != 1 {
		t.Errorf("last bucket TotalRequests = %d, want 1", last.TotalRequests)
	}
}

func TestCollector_StopWithoutStart(t *testing.T) {
	c := NewCollector()
	c.Stop()

	if len(c.TimeSeries()) != 0 {
		t.Error("Stop without Start emitted buckets")
	}
}
