package multichannel

import (
	"github.com/cuemby/tau/pkg/dispatch"
	"github.com/cuemby/tau/pkg/runtime"
	"github.com/cuemby/tau/pkg/transporthealth"
)

// Config parameterizes one multi-channel runtime instance.
type Config struct {
	FixturePath      string
	StateDir         string
	ChannelStoreRoot string
	QueueLimit       int
	ProcessedCaseCap int
	RetryMaxAttempts int
	RetryBaseDelayMs int64
	Dispatch         dispatch.Config
}

// Runner wraps the generic engine with the multi-channel outbound
// adapter.
type Runner struct {
	config Config
	engine *runtime.Engine[Case, Domain]
}

// NewRunner constructs a Runner, loading any existing state under
// config.StateDir.
func NewRunner(config Config) (*Runner, error) {
	dispatcher, err := dispatch.New(config.Dispatch)
	if err != nil {
		return nil, err
	}
	engine, err := runtime.New[Case, Domain]("multi-channel", runtime.Config{
		StateDir:         config.StateDir,
		QueueLimit:       config.QueueLimit,
		ProcessedCaseCap: config.ProcessedCaseCap,
		RetryMaxAttempts: config.RetryMaxAttempts,
		RetryBaseDelayMs: config.RetryBaseDelayMs,
	}, newAdapter(config.ChannelStoreRoot, dispatcher))
	if err != nil {
		return nil, err
	}
	return &Runner{config: config, engine: engine}, nil
}

// RunOnce loads the fixture at fixturePath (falling back to
// config.FixturePath when empty) and executes one cycle.
func (r *Runner) RunOnce(fixturePath string) (runtime.Summary, error) {
	if fixturePath == "" {
		fixturePath = r.config.FixturePath
	}
	fixture, err := LoadFixture(fixturePath)
	if err != nil {
		return runtime.Summary{}, err
	}
	return r.engine.RunOnce(fixture.ToEngineFixture())
}

// Deliveries returns the currently persisted per-conversation delivery
// records.
func (r *Runner) Deliveries() []DeliveryRecord { return r.engine.Domain().Deliveries }

// Health returns the currently persisted transport health snapshot.
func (r *Runner) Health() transporthealth.Snapshot { return r.engine.Health() }
