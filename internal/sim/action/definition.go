package action

import (
	"fmt"
	"strings"
	"time"

	"netaction.dev/internal/protocol"
)

type ID = protocol.ActionID

// BlockingMode says how long an action holds the head of the authority queue.
type BlockingMode int

const (
	// BlockEntireDuration holds the queue until the action ends.
	BlockEntireDuration BlockingMode = iota
	// BlockOnlyDuringExecTime is fire and forget once the exec time is reached.
	BlockOnlyDuringExecTime
)

func (m BlockingMode) String() string {
	switch m {
	case BlockEntireDuration:
		return "ENTIRE_DURATION"
	case BlockOnlyDuringExecTime:
		return "ONLY_DURING_EXEC_TIME"
	default:
		return fmt.Sprintf("BlockingMode(%d)", int(m))
	}
}

func ParseBlockingMode(s string) (BlockingMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ENTIRE_DURATION":
		return BlockEntireDuration, nil
	case "ONLY_DURING_EXEC_TIME":
		return BlockOnlyDuringExecTime, nil
	default:
		return 0, fmt.Errorf("unknown blocking mode %q", s)
	}
}

func (m BlockingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *BlockingMode) UnmarshalText(b []byte) error {
	v, err := ParseBlockingMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Definition holds the static parameters of one action. It is immutable once registered.
type Definition struct {
	Name     string `yaml:"name" json:"name"`
	Behavior string `yaml:"behavior" json:"behavior"`

	// DurationSeconds <= 0 means the behavior alone decides when to stop.
	DurationSeconds float64 `yaml:"duration_seconds" json:"duration_seconds"`
	// ExecTimeSeconds is when the behavior fires its main effect. Schedulers only
	// look at it to reclassify zero-exec non-blocking actions.
	ExecTimeSeconds float64      `yaml:"exec_time_seconds" json:"exec_time_seconds"`
	Radius          float64      `yaml:"radius" json:"radius,omitempty"`
	Anticipatable   bool         `yaml:"anticipatable" json:"anticipatable,omitempty"`
	BlockingMode    BlockingMode `yaml:"blocking_mode" json:"blocking_mode"`

	Params map[string]float64 `yaml:"params" json:"params,omitempty"`
}

func (d Definition) Indefinite() bool { return d.DurationSeconds <= 0 }

func (d Definition) Duration() time.Duration { return seconds(d.DurationSeconds) }

func (d Definition) ExecTime() time.Duration { return seconds(d.ExecTimeSeconds) }

// Expired reports whether an action running for elapsed has outlived its duration.
func (d Definition) Expired(elapsed time.Duration) bool {
	return !d.Indefinite() && elapsed >= d.Duration()
}

// FireAndForget is true for non-blocking actions with no exec time; those must never sit at
// the head of the authority queue.
func (d Definition) FireAndForget() bool {
	return d.BlockingMode == BlockOnlyDuringExecTime && d.ExecTimeSeconds == 0
}

// Param returns a behavior parameter or def when unset.
func (d Definition) Param(name string, def float64) float64 {
	if v, ok := d.Params[name]; ok {
		return v
	}
	return def
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("action definition: missing name")
	}
	if strings.TrimSpace(d.Behavior) == "" {
		return fmt.Errorf("action %s: missing behavior", d.Name)
	}
	if d.Radius < 0 {
		return fmt.Errorf("action %s: negative radius %v", d.Name, d.Radius)
	}
	if d.ExecTimeSeconds < 0 {
		return fmt.Errorf("action %s: negative exec time %v", d.Name, d.ExecTimeSeconds)
	}
	if d.BlockingMode != BlockEntireDuration && d.BlockingMode != BlockOnlyDuringExecTime {
		return fmt.Errorf("action %s: %v", d.Name, d.BlockingMode)
	}
	return nil
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
