package patron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/subscription"
)

// DefaultEscrowAccount holds collected subscription fees until creators
// withdraw them.
const DefaultEscrowAccount = "patron:escrow"

// Clock supplies the current time. It must be monotonically non-decreasing.
type Clock func() time.Time

// Patron is the recurring-billing engine. All mutating operations are
// serialized and each runs as one store transaction.
type Patron struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   Clock

	// mu imposes a single global order on mutating operations.
	mu sync.Mutex

	// Configuration
	period        time.Duration
	maxRetries    uint32
	retryInterval time.Duration
	escrow        string
}

// New creates a new Patron engine over s.
func New(s store.Store, opts ...Option) *Patron {
	p := &Patron{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		clock:      func() time.Time { return time.Now().UTC() },
		period:     subscription.DefaultPeriod,
		maxRetries: subscription.DefaultMaxRetries,
		escrow:     DefaultEscrowAccount,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Option configures a Patron instance.
type Option func(*Patron)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Patron) {
		p.logger = logger
		p.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(pl plugin.Plugin) Option {
	return func(p *Patron) {
		_ = p.plugins.Register(pl) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(clock Clock) Option {
	return func(p *Patron) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithPeriod sets the duration granted by one successful payment.
func WithPeriod(d time.Duration) Option {
	return func(p *Patron) {
		if d > 0 {
			p.period = d
		}
	}
}

// WithMaxRetries sets how many failed renewals are tolerated before the
// subscription is cancelled.
func WithMaxRetries(n uint32) Option {
	return func(p *Patron) {
		p.maxRetries = n
	}
}

// WithRetryInterval sets the minimum wait between failed renewal attempts.
// Zero allows an immediate retry.
func WithRetryInterval(d time.Duration) Option {
	return func(p *Patron) {
		if d >= 0 {
			p.retryInterval = d
		}
	}
}

// WithEscrowAccount sets the account that holds fees until withdrawal.
func WithEscrowAccount(accountID string) Option {
	return func(p *Patron) {
		if accountID != "" {
			p.escrow = accountID
		}
	}
}

// Start migrates the store and initializes plugins.
func (p *Patron) Start(ctx context.Context) error {
	if err := p.store.Migrate(ctx); err != nil {
		return err
	}

	p.plugins.EmitInit(ctx, p)

	p.logger.Info("patron started",
		"period", p.period,
		"max_retries", p.maxRetries,
		"retry_interval", p.retryInterval,
		"escrow", p.escrow,
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (p *Patron) Stop() error {
	p.plugins.EmitShutdown(context.Background())
	return p.store.Close()
}

// Store returns the underlying store.
func (p *Patron) Store() store.Store { return p.store }

// Plugins returns the plugin registry.
func (p *Patron) Plugins() *plugin.Registry { return p.plugins }

// Logger returns the engine logger.
func (p *Patron) Logger() *slog.Logger { return p.logger }

// Now returns the engine clock reading in UTC.
func (p *Patron) Now() time.Time { return p.clock().UTC() }

// Period returns the subscription period.
func (p *Patron) Period() time.Duration { return p.period }

// MaxRetries returns the renewal retry budget.
func (p *Patron) MaxRetries() uint32 { return p.maxRetries }

// RetryInterval returns the minimum wait between failed renewals.
func (p *Patron) RetryInterval() time.Duration { return p.retryInterval }

// EscrowAccount returns the escrow account identifier.
func (p *Patron) EscrowAccount() string { return p.escrow }

// atomic serializes fn against every other mutating operation and runs it
// in one store transaction.
func (p *Patron) atomic(ctx context.Context, fn store.TxFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.store.Atomic(ctx, fn)
}
