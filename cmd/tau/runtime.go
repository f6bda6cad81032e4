package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/tau/pkg/config"
	"github.com/cuemby/tau/pkg/events"
	"github.com/cuemby/tau/pkg/log"
	"github.com/cuemby/tau/pkg/metrics"
	"github.com/cuemby/tau/pkg/reconciler"
	"github.com/cuemby/tau/pkg/runtime/customcommand"
	"github.com/cuemby/tau/pkg/runtime/memoryrt"
	"github.com/cuemby/tau/pkg/runtime/multichannel"
	"github.com/cuemby/tau/pkg/scheduler"
	"github.com/cuemby/tau/pkg/transporthealth"
)

const (
	kindCustomCommand = "custom-command"
	kindMultiChannel  = "multi-channel"
	kindMemory        = "memory"
)

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Run a contract runtime against a fixture, once or as a supervised daemon",
}

func newCustomCommandRunner(cfg config.TauConfig, fixturePath string) (*customcommand.Runner, error) {
	rc := cfg.CustomCommand
	return customcommand.NewRunner(customcommand.Config{
		FixturePath:      fixturePath,
		StateDir:         rc.StateDir,
		ChannelStoreRoot: rc.ChannelStoreRoot,
		QueueLimit:       rc.QueueLimit,
		ProcessedCaseCap: rc.ProcessedCaseCap,
		RetryMaxAttempts: rc.RetryMaxAttempts,
		RetryBaseDelayMs: rc.RetryBaseDelayMs,
	})
}

func newMultiChannelRunner(cfg config.TauConfig, fixturePath string) (*multichannel.Runner, error) {
	rc := cfg.MultiChannel
	return multichannel.NewRunner(multichannel.Config{
		FixturePath:      fixturePath,
		StateDir:         rc.StateDir,
		ChannelStoreRoot: rc.ChannelStoreRoot,
		QueueLimit:       rc.QueueLimit,
		ProcessedCaseCap: rc.ProcessedCaseCap,
		RetryMaxAttempts: rc.RetryMaxAttempts,
		RetryBaseDelayMs: rc.RetryBaseDelayMs,
		Dispatch:         cfg.ToDispatchConfig(),
	})
}

func newMemoryRunner(cfg config.TauConfig, fixturePath string) (*memoryrt.Runner, error) {
	rc := cfg.Memory
	return memoryrt.NewRunner(memoryrt.Config{
		FixturePath:      fixturePath,
		StateDir:         rc.StateDir,
		ChannelStoreRoot: rc.ChannelStoreRoot,
		QueueLimit:       rc.QueueLimit,
		ProcessedCaseCap: rc.ProcessedCaseCap,
		RetryMaxAttempts: rc.RetryMaxAttempts,
		RetryBaseDelayMs: rc.RetryBaseDelayMs,
	})
}

var runtimeRunCmd = &cobra.Command{
	Use:   "run FIXTURE_PATH",
	Short: "Run a single reconciliation cycle for one contract runtime",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fixturePath := args[0]
		kind, _ := cmd.Flags().GetString("kind")
		requestID, _ := cmd.Flags().GetString("request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := log.WithRuntime(kind)

		cfg, err := config.Load(configPath(cmd))
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		logger.Info().Str("request_id", requestID).Str("fixture", fixturePath).Msg("starting runtime cycle")

		var summaryErr error
		var applied, malformed, failed, duplicates int

		switch kind {
		case kindCustomCommand:
			runner, err := newCustomCommandRunner(cfg, fixturePath)
			if err != nil {
				return fmt.Errorf("failed to construct custom-command runner: %v", err)
			}
			summary, runErr := runner.RunOnce(fixturePath)
			summaryErr = runErr
			applied, malformed, failed, duplicates = summary.AppliedCases, summary.MalformedCases, summary.FailedCases, summary.DuplicateSkips
		case kindMultiChannel:
			runner, err := newMultiChannelRunner(cfg, fixturePath)
			if err != nil {
				return fmt.Errorf("failed to construct multi-channel runner: %v", err)
			}
			summary, runErr := runner.RunOnce(fixturePath)
			summaryErr = runErr
			applied, malformed, failed, duplicates = summary.AppliedCases, summary.MalformedCases, summary.FailedCases, summary.DuplicateSkips
		case kindMemory:
			runner, err := newMemoryRunner(cfg, fixturePath)
			if err != nil {
				return fmt.Errorf("failed to construct memory runner: %v", err)
			}
			summary, runErr := runner.RunOnce(fixturePath)
			summaryErr = runErr
			applied, malformed, failed, duplicates = summary.AppliedCases, summary.MalformedCases, summary.FailedCases, summary.DuplicateSkips
		default:
			return fmt.Errorf("unknown runtime kind %q (want %s, %s, or %s)", kind, kindCustomCommand, kindMultiChannel, kindMemory)
		}

		if summaryErr != nil {
			logger.Error().Str("request_id", requestID).Err(summaryErr).Msg("runtime cycle failed")
			return fmt.Errorf("cycle failed: %v", summaryErr)
		}
		fmt.Printf("✓ Cycle complete (request_id=%s): applied=%d malformed=%d failed=%d duplicates=%d\n",
			requestID, applied, malformed, failed, duplicates)
		return nil
	},
}

var runtimeDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run all configured contract runtimes as supervised background cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath(cmd))
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}

		customCommandFixture, _ := cmd.Flags().GetString("custom-command-fixture")
		multiChannelFixture, _ := cmd.Flags().GetString("multi-channel-fixture")
		memoryFixture, _ := cmd.Flags().GetString("memory-fixture")
		interval, _ := cmd.Flags().GetDuration("interval")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		coordinator := scheduler.NewCoordinator()

		if customCommandFixture != "" {
			runner, err := newCustomCommandRunner(cfg, customCommandFixture)
			if err != nil {
				return fmt.Errorf("failed to construct custom-command runner: %v", err)
			}
			supervisor := reconciler.New(kindCustomCommand, runner, customCommandFixture, interval, broker)
			if err := coordinator.Register(kindCustomCommand, supervisor, runner); err != nil {
				return err
			}
		}
		if multiChannelFixture != "" {
			runner, err := newMultiChannelRunner(cfg, multiChannelFixture)
			if err != nil {
				return fmt.Errorf("failed to construct multi-channel runner: %v", err)
			}
			supervisor := reconciler.New(kindMultiChannel, runner, multiChannelFixture, interval, broker)
			if err := coordinator.Register(kindMultiChannel, supervisor, runner); err != nil {
				return err
			}
		}
		if memoryFixture != "" {
			runner, err := newMemoryRunner(cfg, memoryFixture)
			if err != nil {
				return fmt.Errorf("failed to construct memory runner: %v", err)
			}
			supervisor := reconciler.New(kindMemory, runner, memoryFixture, interval, broker)
			if err := coordinator.Register(kindMemory, supervisor, runner); err != nil {
				return err
			}
		}

		coordinator.Start()
		fmt.Println("✓ Runtime coordinator started")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("session_store", transporthealth.Healthy, "ready")
		metrics.RegisterComponent("channel_store", transporthealth.Healthy, "ready")
		metrics.RegisterComponent("runtime_engine", transporthealth.Healthy, "ready")

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

		refreshTicker := time.NewTicker(15 * time.Second)
		defer refreshTicker.Stop()
		refreshStop := make(chan struct{})
		go func() {
			for {
				select {
				case <-refreshTicker.C:
					coordinator.RefreshHealth()
				case <-refreshStop:
					return
				}
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")

		close(refreshStop)
		coordinator.Stop()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	runtimeCmd.AddCommand(runtimeRunCmd)
	runtimeCmd.AddCommand(runtimeDaemonCmd)

	runtimeRunCmd.Flags().String("kind", kindCustomCommand, "Runtime kind: custom-command, multi-channel, or memory")
	runtimeRunCmd.Flags().String("request-id", "", "Correlation id for this invocation's log lines (generated if empty)")

	runtimeDaemonCmd.Flags().String("custom-command-fixture", "", "Fixture path for the custom-command runtime (empty disables it)")
	runtimeDaemonCmd.Flags().String("multi-channel-fixture", "", "Fixture path for the multi-channel runtime (empty disables it)")
	runtimeDaemonCmd.Flags().String("memory-fixture", "", "Fixture path for the memory runtime (empty disables it)")
	runtimeDaemonCmd.Flags().Duration("interval", 10*time.Second, "Reconciliation cycle interval")
	runtimeDaemonCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics and health HTTP server")
}
