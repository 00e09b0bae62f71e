// Package perf is the library entry point to the volley load-test engine.
//
// Load a config file or a built-in preset and run it:
//
//	cfg, err := perf.LoadPreset("smoke")
//	if err != nil {
//	    return err
//	}
//	cfg.BaseURL = "http://localhost:8080"
//	result, err := perf.RunTest(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	os.Exit(result.ExitCode())
//
// # Custom scenarios
//
// The configured HTTP requests can be replaced by any Go code. The factory
// is called once per virtual user; the scenario is invoked once per
// iteration and reports what it did as an Outcome:
//
//	factory := func(env *perf.VUEnv) (perf.Scenario, error) {
//	    return perf.ScenarioFunc(func(ctx context.Context) perf.Outcome {
//	        start := time.Now()
//	        err := doWork(ctx)
//	        return perf.Outcome{Duration: time.Since(start), Err: err}
//	    }), nil
//	}
//	result, err := perf.RunTest(ctx, cfg, perf.WithScenario(factory))
//
// When only the duration and error matter, Timed builds the scenario:
//
//	factory := func(env *perf.VUEnv) (perf.Scenario, error) {
//	    return perf.Timed(doWork), nil
//	}
//
// Thresholds, stages and think time apply the same way in both modes.
package perf
