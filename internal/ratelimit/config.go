package ratelimit

import "time"

// Config is the per-upstream rate-limit configuration.
type Config struct {
	// Interval is the configured minimum pacing between releases, in
	// seconds.
	Interval float64 `mapstructure:"interval"`
	// RPD is the requests-per-day quota. -1 means unlimited.
	RPD int `mapstructure:"RPD"`
	// AddRandom adds a uniform [0,1)s jitter to each release when true.
	AddRandom bool `mapstructure:"add_random"`
}

// DefaultConfig returns the baseline rate-limit configuration applied
// when a source omits these fields.
func DefaultConfig() Config {
	return Config{Interval: 0.001, RPD: -1, AddRandom: false}
}

// WithDefaults fills in a zero Interval with its baseline value. It is
// for callers that build a Config directly (tests, call sites with no
// source map to consult) and have no way to tell "unset" from an
// explicit zero. The config file and admin decoders seed a Config
// from DefaultConfig before decoding onto it instead, so an absent
// field keeps its default and an explicit "interval": 0 survives --
// WithDefaults must not be called again afterwards, or it would
// clobber that explicit zero back to the default.
func (c Config) WithDefaults() Config {
	if c.Interval == 0 {
		c.Interval = DefaultConfig().Interval
	}
	return c
}

// EffectiveInterval applies a 10% safety margin to Interval and
// returns it as a time.Duration.
func (c Config) EffectiveInterval() time.Duration {
	return time.Duration(c.Interval * 1.1 * float64(time.Second))
}

// Unlimited reports whether RPD imposes no quota.
func (c Config) Unlimited() bool {
	return c.RPD < 0
}
