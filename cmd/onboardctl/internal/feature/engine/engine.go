package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

const (
	errTailLines = 3
	errTailChars = 500
)

// Variable for mocking in tests
var execCommand = exec.Command

// Engine drives the declarative resource engine (terraform) in a fixed
// working directory with the persisted onboarding variable file.
type Engine struct {
	Binary  string
	Dir     string
	VarFile string
}

func New(binary, dir, varFile string) *Engine {
	if binary == "" {
		binary = "terraform"
	}
	return &Engine{Binary: binary, Dir: dir, VarFile: varFile}
}

func (e *Engine) run(args ...string) (string, string, error) {
	cmd := execCommand(e.Binary, args...)
	cmd.Dir = e.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Init prepares the working directory.
func (e *Engine) Init() error {
	_, stderr, err := e.run("init", "-input=false", "-no-color")
	if err != nil {
		return fmt.Errorf("engine init failed: %w: %s", err, ErrorTail(stderr))
	}
	return nil
}

// StateList returns the logical slots currently bound in state. A missing
// state file is an empty list, not an error.
func (e *Engine) StateList() ([]string, error) {
	stdout, stderr, err := e.run("state", "list", "-no-color")
	if err != nil {
		if strings.Contains(stderr, "No state file") {
			return nil, nil
		}
		return nil, fmt.Errorf("engine state list failed: %w: %s", err, ErrorTail(stderr))
	}

	var slots []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			slots = append(slots, line)
		}
	}
	return slots, nil
}

// Import binds a live physical object to a logical slot in state.
func (e *Engine) Import(slot, physicalID string) error {
	_, stderr, err := e.run("import", "-input=false", "-no-color",
		"-var-file="+e.VarFile, slot, physicalID)
	if err != nil {
		return fmt.Errorf("engine import of %s failed: %w: %s", slot, err, ErrorTail(stderr))
	}
	return nil
}

// ApplyResult carries the engine's human-readable outcome.
type ApplyResult struct {
	// Summary is the engine's own success output, forwarded verbatim.
	Summary string
	// ErrorDetail is a bounded extract of the diagnostic stream on failure,
	// suitable for telemetry.
	ErrorDetail string
}

// Apply runs the engine's create/update step. Never retried: repeated apply
// against unknown partial state risks conflicting mutations, and re-running
// the whole workflow re-enters reconciliation instead.
func (e *Engine) Apply() (*ApplyResult, error) {
	stdout, stderr, err := e.run("apply", "-input=false", "-auto-approve",
		"-var-file="+e.VarFile)
	if err != nil {
		return &ApplyResult{ErrorDetail: ErrorTail(stderr)},
			fmt.Errorf("engine apply failed: %w", err)
	}
	return &ApplyResult{Summary: stdout}, nil
}

// Outputs reads the engine's output values after a successful apply.
func (e *Engine) Outputs() (map[string]string, error) {
	stdout, stderr, err := e.run("output", "-json", "-no-color")
	if err != nil {
		return nil, fmt.Errorf("engine output failed: %w: %s", err, ErrorTail(stderr))
	}

	var raw map[string]struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse engine outputs: %w", err)
	}

	outputs := make(map[string]string, len(raw))
	for name, out := range raw {
		if s, ok := out.Value.(string); ok {
			outputs[name] = s
		}
	}
	return outputs, nil
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// ErrorTail extracts the last few error-bearing lines of an engine
// diagnostic stream, stripped of terminal formatting and bounded for
// telemetry.
func ErrorTail(output string) string {
	clean := ansiEscape.ReplaceAllString(output, "")

	var errLines []string
	for _, line := range strings.Split(clean, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "error") {
			errLines = append(errLines, line)
		}
	}
	if len(errLines) > errTailLines {
		errLines = errLines[len(errLines)-errTailLines:]
	}

	tail := strings.Join(errLines, "\n")
	if len(tail) > errTailChars {
		tail = tail[:errTailChars]
	}
	return tail
}
