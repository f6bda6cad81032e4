// Package multichannel adapts the generic contract runtime engine to
// outbound multi-channel delivery: each contract case represents one
// inbound event awaiting a reply, replayed deterministically and then,
// on success, actually dispatched through pkg/dispatch.
package multichannel

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tau/pkg/dispatch"
	"github.com/cuemby/tau/pkg/runtime"
)

// Case is one declarative contract case: an inbound event's addressing
// plus the reply text to deliver, and the simulated/expected replay
// outcome used for deterministic contract testing.
type Case struct {
	CaseID              string            `yaml:"case_id"`
	Transport           string            `yaml:"transport"`
	ConversationID      string            `yaml:"conversation_id"`
	ActorID             string            `yaml:"actor_id"`
	ResponseText        string            `yaml:"response_text"`
	Metadata            map[string]string `yaml:"metadata,omitempty"`
	SimulatedStep       string            `yaml:"simulated_step"`
	SimulatedErrorCode  string            `yaml:"simulated_error_code,omitempty"`
	ExpectedStep        string            `yaml:"expected_step,omitempty"`
}

// Fixture is the top-level contract fixture document.
type Fixture struct {
	Cases []Case `yaml:"cases"`
}

// LoadFixture reads and parses a YAML contract fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("failed to read multi-channel fixture %s: %w", path, err)
	}
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("failed to parse multi-channel fixture %s: %w", path, err)
	}
	return fixture, nil
}

// ToEngineFixture adapts a Fixture to the generic engine's Fixture[Case].
func (f Fixture) ToEngineFixture() runtime.Fixture[Case] {
	return runtime.Fixture[Case]{Cases: f.Cases}
}

// Evaluate is a pure function of the case's own declared simulated step.
func Evaluate(c Case) runtime.ReplayResult {
	switch strings.ToLower(strings.TrimSpace(c.SimulatedStep)) {
	case "malformed_input":
		return runtime.ReplayResult{Step: runtime.StepMalformedInput, ErrorCode: c.SimulatedErrorCode}
	case "retryable_failure":
		return runtime.ReplayResult{Step: runtime.StepRetryableFailure, ErrorCode: c.SimulatedErrorCode}
	default:
		return runtime.ReplayResult{Step: runtime.StepSuccess}
	}
}

// Validate compares the observed result's step against the case's own
// declared expectation, when one was supplied.
func Validate(c Case, result runtime.ReplayResult) error {
	if strings.TrimSpace(c.ExpectedStep) == "" {
		return nil
	}
	expected := strings.ToLower(strings.TrimSpace(c.ExpectedStep))
	if expected != result.Step.String() {
		return fmt.Errorf("case %q expected step %q but observed %q", c.CaseID, expected, result.Step.String())
	}
	return nil
}

func caseRuntimeKey(c Case) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToUpper(strings.TrimSpace(c.Transport)), strings.TrimSpace(c.ConversationID), strings.TrimSpace(c.CaseID))
}

func toDispatchEvent(c Case) dispatch.Event {
	return dispatch.Event{
		Transport:      dispatch.Transport(strings.ToLower(strings.TrimSpace(c.Transport))),
		ConversationID: c.ConversationID,
		ActorID:        c.ActorID,
		Metadata:       c.Metadata,
	}
}
