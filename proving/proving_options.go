package proving

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/bid"
	"github.com/spacemeshos/bitecoin/config"
)

// Clock is the wall-clock source of the scheduler.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type option struct {
	cfg       *config.Config
	logger    *zap.Logger
	clock     Clock
	submitter bid.Submitter
}

func (o *option) validate() error {
	if o.submitter == nil {
		return errors.New("`submitter` is required")
	}
	if o.clock == nil {
		return errors.New("`clock` must not be nil")
	}
	return o.cfg.Validate()
}

// OptionFunc is a function that sets an option for a Scheduler.
type OptionFunc func(*option) error

// WithConfig sets the engine configuration.
func WithConfig(cfg config.Config) OptionFunc {
	return func(o *option) error {
		o.cfg = &cfg
		return nil
	}
}

// WithLogger sets the logger of the scheduler.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *option) error {
		if logger == nil {
			return errors.New("`logger` must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) OptionFunc {
	return func(o *option) error {
		o.clock = clock
		return nil
	}
}

// WithSubmitter sets where the bid of every round is sent.
func WithSubmitter(s bid.Submitter) OptionFunc {
	return func(o *option) error {
		o.submitter = s
		return nil
	}
}
