package reconciler

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/tau/pkg/events"
	"github.com/cuemby/tau/pkg/runtime"
	"github.com/cuemby/tau/pkg/transporthealth"
)

type fakeRunner struct {
	summary runtime.Summary
	health  transporthealth.Snapshot
	err     error
	calls   int
}

func (f *fakeRunner) RunOnce(fixturePath string) (runtime.Summary, error) {
	f.calls++
	if f.err != nil {
		return runtime.Summary{}, f.err
	}
	return f.summary, nil
}

func (f *fakeRunner) Health() transporthealth.Snapshot { return f.health }

func TestSupervisorTickPublishesCompletionEvent(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	runner := &fakeRunner{summary: runtime.Summary{AppliedCases: 2}}
	supervisor := New("custom-command", runner, "", time.Second, broker)

	supervisor.tick()

	if runner.calls != 1 {
		t.Fatalf("expected RunOnce to be called once, got %d", runner.calls)
	}

	deadline := time.After(time.Second)
	var sawCompletion bool
	for !sawCompletion {
		select {
		case evt := <-sub:
			if evt.Type == events.EventCycleCompleted {
				sawCompletion = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for cycle.completed event")
		}
	}
}

func TestSupervisorTickPublishesFailureOnError(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	runner := &fakeRunner{err: errors.New("boom")}
	supervisor := New("memory", runner, "", time.Second, broker)

	supervisor.tick()

	// tick publishes cycle.started before it learns the outcome; the event
	// after it must be case.failed.
	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-sub:
			if evt.Type == events.EventCycleStarted {
				continue
			}
			if evt.Type != events.EventCaseFailed {
				t.Errorf("expected case.failed event, got %s", evt.Type)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for case.failed event")
		}
	}
}

func TestSupervisorStartStopDoesNotPanic(t *testing.T) {
	runner := &fakeRunner{summary: runtime.Summary{}}
	supervisor := New("multi-channel", runner, "", 10*time.Millisecond, nil)

	supervisor.Start()
	time.Sleep(25 * time.Millisecond)
	supervisor.Stop()
}
