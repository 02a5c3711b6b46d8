package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netaction.dev/internal/protocol"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	// AnticipationTimeoutMs is announced to clients in WELCOME. Zero cancels an unconfirmed
	// prediction on its first evaluation.
	AnticipationTimeoutMs int `yaml:"anticipation_timeout_ms" json:"anticipation_timeout_ms"`
	PoolMaxIdlePerAction  int `yaml:"pool_max_idle_per_action" json:"pool_max_idle_per_action"`
	MaxOutQueue           int `yaml:"max_out_queue" json:"max_out_queue"`
	MaxQueuedPerActor     int `yaml:"max_queued_per_actor" json:"max_queued_per_actor"`

	StartHP   int     `yaml:"start_hp" json:"start_hp"`
	ArenaSize float64 `yaml:"arena_size" json:"arena_size"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:       protocol.Version,
		TickRateHz:            20,
		AnticipationTimeoutMs: 250,
		PoolMaxIdlePerAction:  64,
		MaxOutQueue:           256,
		MaxQueuedPerActor:     8,
		StartHP:               100,
		ArenaSize:             32,
	}
}

// Load reads tuning.yaml on top of Defaults; keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.AnticipationTimeoutMs < 0 {
		return fmt.Errorf("anticipation_timeout_ms must be >= 0")
	}
	if t.PoolMaxIdlePerAction < 0 || t.MaxOutQueue < 0 || t.MaxQueuedPerActor < 0 {
		return fmt.Errorf("limits must be >= 0")
	}
	if t.ProtocolVersion != "" && t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q not supported (want %s)", t.ProtocolVersion, protocol.Version)
	}
	return nil
}

func (t Tuning) AnticipationTimeout() time.Duration {
	return time.Duration(t.AnticipationTimeoutMs) * time.Millisecond
}

// Digest identifies a tuning set in WELCOME and the index.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
