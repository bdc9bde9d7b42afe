package bicbridge

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig carries every arming/operational parameter that is
// reasonable to default and override from a config file rather than wire
// on every call (spec §9 open question (a): the sample rate is
// parameterized here instead of hardcoded).
//
// Grounded on rpc_server.go's viper.UnmarshalKey("<section>", &cfg)
// pattern for SimPulseSourceConfig/TriangleSourceConfig/etc.
type EngineConfig struct {
	SampleRateHz float64 `mapstructure:"samplerateHz"`

	SensingChannel       int     `mapstructure:"sensingChannel"`
	InterpolationCeiling uint32  `mapstructure:"interpolationCeiling"`
	NeuralBatchSize      int     `mapstructure:"neuralBatchSize"`
	AmplitudeThreshold   float64 `mapstructure:"amplitudeThreshold"`
	InitialTriggerPhase  float64 `mapstructure:"initialTriggerPhase"`
	TargetPhase          float64 `mapstructure:"targetPhase"`

	WatchdogIntervalMillis int `mapstructure:"watchdogIntervalMillis"`

	StimLogQueueCapacity int `mapstructure:"stimLogQueueCapacity"`
}

// WatchdogInterval returns the configured open-loop retrigger interval as
// a time.Duration.
func (c EngineConfig) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalMillis) * time.Millisecond
}

// setEngineConfigDefaults seeds viper with the engine's defaults, so a
// config file only needs to override what differs.
func setEngineConfigDefaults(v *viper.Viper) {
	v.SetDefault("engine.samplerateHz", 1000.0)
	v.SetDefault("engine.sensingChannel", 0)
	v.SetDefault("engine.interpolationCeiling", 10)
	v.SetDefault("engine.neuralBatchSize", 100)
	v.SetDefault("engine.amplitudeThreshold", 10.0)
	v.SetDefault("engine.initialTriggerPhase", 25.0)
	v.SetDefault("engine.targetPhase", 210.0)
	v.SetDefault("engine.watchdogIntervalMillis", 10)
	v.SetDefault("engine.stimLogQueueCapacity", 1000)
}

// LoadEngineConfig reads "engine" out of the given viper instance,
// falling back to defaults for anything not overridden by a config file
// or environment variable.
func LoadEngineConfig(v *viper.Viper) (EngineConfig, error) {
	if v == nil {
		v = viper.GetViper()
	}
	setEngineConfigDefaults(v)

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("bicbridge: unmarshal engine config: %w", err)
	}
	return cfg, nil
}

// DefaultEngineConfig returns EngineConfig populated with the package
// defaults, with no config file involved. Useful for tests and for
// programmatic construction.
func DefaultEngineConfig() EngineConfig {
	v := viper.New()
	cfg, _ := LoadEngineConfig(v)
	return cfg
}
