package config

import "time"

const (
	defaultDataDir                  = "~/.local/share/fabula"
	defaultLogDir                   = "~/.local/share/fabula/logs"
	defaultLogLevel                 = "info"
	defaultLogFormat                = "console"
	defaultHeartbeatIntervalSeconds = 15
	defaultStaleRecordingSeconds    = 120
	defaultDurationToleranceSeconds = 0.5
	defaultMaxChoiceLength          = 256
	defaultJanitorSweepSeconds      = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Engine: Engine{
			HeartbeatIntervalSeconds: defaultHeartbeatIntervalSeconds,
			StaleRecordingSeconds:    defaultStaleRecordingSeconds,
			DurationToleranceSeconds: defaultDurationToleranceSeconds,
			MaxChoiceLength:          defaultMaxChoiceLength,
			JanitorSweepSeconds:      defaultJanitorSweepSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// HeartbeatInterval returns the writer heartbeat refresh interval.
func (e Engine) HeartbeatInterval() time.Duration {
	return time.Duration(e.HeartbeatIntervalSeconds) * time.Second
}

// StaleRecordingTimeout returns the heartbeat age past which an in-progress
// recording is reclaimable.
func (e Engine) StaleRecordingTimeout() time.Duration {
	return time.Duration(e.StaleRecordingSeconds) * time.Second
}

// JanitorSweepInterval returns the delay between janitor sweeps.
func (e Engine) JanitorSweepInterval() time.Duration {
	return time.Duration(e.JanitorSweepSeconds) * time.Second
}
