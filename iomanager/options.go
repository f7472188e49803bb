package iomanager

import "time"

// defaultMaxTimeout bounds how long idle() will block in the
// multiplexer when no timer is pending, so a manager with no timers
// and no fds still wakes periodically (spec.md §4.6: "t =
// min(next_timer_timeout(), MAX_TIMEOUT)").
const defaultMaxTimeout = 10 * time.Second

type options struct {
	maxTimeoutMs int
}

// Option configures an IOManager.
type Option interface{ apply(*options) }

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithMaxTimeout caps how long a single idle() pass blocks in the
// multiplexer when no timer fires sooner.
func WithMaxTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.maxTimeoutMs = int(d.Milliseconds())
		}
	})
}

func resolveOptions(opts []Option) *options {
	cfg := &options{maxTimeoutMs: int(defaultMaxTimeout.Milliseconds())}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
