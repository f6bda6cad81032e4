// Package customcommand adapts the generic contract runtime engine
// (pkg/runtime) to custom slash-command CRUD+run semantics: CREATE,
// UPDATE, DELETE, RUN and LIST operations against a command registry,
// replayed from a declarative fixture of contract cases.
package customcommand

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tau/pkg/runtime"
)

// Case is one declarative contract case: the operation to replay plus
// the simulated outcome the fixture author wants Evaluate to produce,
// and (optionally) the outcome the case author expects, checked by
// Validate.
type Case struct {
	CaseID              string `yaml:"case_id"`
	Operation           string `yaml:"operation"`
	CommandName         string `yaml:"command_name"`
	Template            string `yaml:"template,omitempty"`
	SimulatedStep       string `yaml:"simulated_step"`
	SimulatedStatusCode int    `yaml:"simulated_status_code"`
	SimulatedErrorCode  string `yaml:"simulated_error_code,omitempty"`
	ExpectedStep        string `yaml:"expected_step,omitempty"`
}

// Fixture is the top-level contract fixture document.
type Fixture struct {
	Cases []Case `yaml:"cases"`
}

// LoadFixture reads and parses a YAML contract fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("failed to read custom-command fixture %s: %w", path, err)
	}
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("failed to parse custom-command fixture %s: %w", path, err)
	}
	return fixture, nil
}

// ToEngineFixture adapts a Fixture to the generic engine's Fixture[Case].
func (f Fixture) ToEngineFixture() runtime.Fixture[Case] {
	return runtime.Fixture[Case]{Cases: f.Cases}
}

// evaluatedPayload carries the simulated status code through
// runtime.ReplayResult.Payload for use by PersistSuccess/PersistNonSuccess.
type evaluatedPayload struct {
	StatusCode int
}

// Evaluate is a pure function of the case: it returns exactly the step
// and status code the fixture declares, simulating success/failure
// deterministically rather than performing any real I/O.
func Evaluate(c Case) runtime.ReplayResult {
	switch strings.ToLower(strings.TrimSpace(c.SimulatedStep)) {
	case "malformed_input":
		return runtime.ReplayResult{
			Step:      runtime.StepMalformedInput,
			ErrorCode: c.SimulatedErrorCode,
			Payload:   evaluatedPayload{StatusCode: c.SimulatedStatusCode},
		}
	case "retryable_failure":
		return runtime.ReplayResult{
			Step:      runtime.StepRetryableFailure,
			ErrorCode: c.SimulatedErrorCode,
			Payload:   evaluatedPayload{StatusCode: c.SimulatedStatusCode},
		}
	default:
		statusCode := c.SimulatedStatusCode
		if statusCode == 0 {
			statusCode = 200
		}
		return runtime.ReplayResult{Step: runtime.StepSuccess, Payload: evaluatedPayload{StatusCode: statusCode}}
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

func normalizeOperation(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// channelIDForCase mirrors the original's channel-scoping rule: the
// command name if it is non-empty and made up only of
// letters/digits/underscore/hyphen, otherwise the registry-wide
// fallback "registry".
func channelIDForCase(c Case) string {
	trimmed := strings.TrimSpace(c.CommandName)
	if trimmed == "" {
		return "registry"
	}
	for _, r := range trimmed {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return "registry"
		}
	}
	return trimmed
}

// caseRuntimeKey is the dedupe key: "{OPERATION}:{command_name}:{case_id}".
func caseRuntimeKey(c Case) string {
	return fmt.Sprintf("%s:%s:%s", normalizeOperation(c.Operation), strings.TrimSpace(c.CommandName), strings.TrimSpace(c.CaseID))
}

func statusCodeOf(result runtime.ReplayResult) int {
	if payload, ok := result.Payload.(evaluatedPayload); ok {
		return payload.StatusCode
	}
	return 0
}
