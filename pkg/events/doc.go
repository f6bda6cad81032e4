/*
Package events provides an in-memory event broker for fanning out runtime
occurrences to interested subscribers.

The events package implements a lightweight, buffered pub/sub bus used to
broadcast contract-runtime cycle events to anything that wants to observe
them without coupling the publisher to the subscriber. Its type catalog also
names dispatch outcomes and session/channel store writes.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher → Event Channel (buffer: 100)                  │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                     │
	│                                                            │
	│  Event Types:                                              │
	│    cycle.started, cycle.completed                          │
	│    case.applied, case.failed, case.retried                 │
	│    dispatch.sent, dispatch.failed                           │
	│    session.appended, channel.written                       │
	│    runtime.degraded, runtime.unhealthy                     │
	└────────────────────────────────────────────────────────────┘

# Core Components

Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Buffered publish (waits only while the 100-event channel is full)
  - Graceful shutdown via stop channel

Event:
  - ID: caller-assigned identifier
  - Type: event type (cycle.completed, case.failed, etc.)
  - Timestamp: when the event occurred, set by Publish if zero
  - Message: human-readable description
  - Metadata: key-value pairs for additional context

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to absorb bursts
  - Created via broker.Subscribe(), closed via broker.Unsubscribe()

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s: %s\n", event.Timestamp.Format(time.RFC3339), event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventCaseFailed,
		Message: "case apply failed: malformed payload",
		Metadata: map[string]string{
			"runtime": "custom-command",
			"case_id": "case-42",
		},
	})

# Integration points

  - pkg/reconciler: publishes cycle.started, cycle.completed, case.failed and
    runtime.degraded/runtime.unhealthy for each supervised cycle
  - cmd/tau: creates and starts the broker for `tau runtime daemon` and
    hands it to every supervisor; it does not subscribe

No package in this module publishes case.applied, case.retried,
dispatch.sent, dispatch.failed, session.appended or channel.written.

# Design notes

Publish waits while the broker's 100-event channel is full (or until the
broker stops). Delivery to subscribers is best-effort: a full subscriber
buffer causes that subscriber to miss the event rather than stall the
broker. This package has
no persistence or replay; subscribers that need history should keep their
own log of received events.
*/
package events
