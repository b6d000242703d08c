package insurance

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/warp/insurance-engine/events"
)

type options struct {
	clock     Clock
	logger    *slog.Logger
	newID     func() string
	newMemo   func() string
	scheduler Scheduler
	publisher events.Publisher
}

// Option configures a Registry or Reservations.
type Option func(*options)

func defaultOptions() options {
	return options{
		clock:     SystemClock{},
		logger:    slog.Default(),
		newID:     uuid.NewString,
		newMemo:   uuid.NewString,
		publisher: events.Nop{},
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithIDGenerator replaces the policy id generator.
func WithIDGenerator(f func() string) Option { return func(o *options) { o.newID = f } }

// WithMemoGenerator replaces the booking memo generator.
func WithMemoGenerator(f func() string) Option { return func(o *options) { o.newMemo = f } }

// WithScheduler replaces the expiry scheduler (default: TimerScheduler).
func WithScheduler(s Scheduler) Option { return func(o *options) { o.scheduler = s } }

func WithPublisher(p events.Publisher) Option { return func(o *options) { o.publisher = p } }
