package bicbridge

import "testing"

func TestDefaultEngineConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultEngineConfig()
	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"SampleRateHz", cfg.SampleRateHz, 1000},
		{"InterpolationCeiling", float64(cfg.InterpolationCeiling), 10},
		{"NeuralBatchSize", float64(cfg.NeuralBatchSize), 100},
		{"AmplitudeThreshold", cfg.AmplitudeThreshold, 10},
		{"InitialTriggerPhase", cfg.InitialTriggerPhase, 25},
		{"TargetPhase", cfg.TargetPhase, 210},
		{"WatchdogIntervalMillis", float64(cfg.WatchdogIntervalMillis), 10},
		{"StimLogQueueCapacity", float64(cfg.StimLogQueueCapacity), 1000},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s=%v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestWatchdogIntervalConversion(t *testing.T) {
	cfg := DefaultEngineConfig()
	if got, want := cfg.WatchdogInterval().Milliseconds(), int64(10); got != want {
		t.Errorf("WatchdogInterval()=%dms, want %dms", got, want)
	}
}
