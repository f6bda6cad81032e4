package memoryrt

import (
	"github.com/cuemby/tau/pkg/runtime"
	"github.com/cuemby/tau/pkg/transporthealth"
)

// Config parameterizes one memory runtime instance.
type Config struct {
	FixturePath      string
	StateDir         string
	ChannelStoreRoot string
	QueueLimit       int
	ProcessedCaseCap int
	RetryMaxAttempts int
	RetryBaseDelayMs int64
}

// Runner wraps the generic engine with the memory adapter.
type Runner struct {
	config Config
	engine *runtime.Engine[Case, Domain]
}

// NewRunner constructs a Runner, loading any existing state under
// config.StateDir.
func NewRunner(config Config) (*Runner, error) {
	engine, err := runtime.New[Case, Domain]("memory", runtime.Config{
		StateDir:         config.StateDir,
		QueueLimit:       config.QueueLimit,
		ProcessedCaseCap: config.ProcessedCaseCap,
		RetryMaxAttempts: config.RetryMaxAttempts,
		RetryBaseDelayMs: config.RetryBaseDelayMs,
	}, newAdapter(config.ChannelStoreRoot))
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

// Entries returns the currently persisted memory entries.
func (r *Runner) Entries() []Entry { return r.engine.Domain().Entries }

// Health returns the currently persisted transport health snapshot.
func (r *Runner) Health() transporthealth.Snapshot { return r.engine.Health() }
