package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"netaction.dev/internal/protocol"
	"netaction.dev/internal/sim/action"
)

var ErrUnknownBehavior = errors.New("unknown behavior")

// Factory builds a behavior for one definition.
type Factory = func(def *action.Definition) action.Behavior

// Registry maps action ids to their definitions and behavior factories. Ids are assigned
// 0..n-1 in first-occurrence order of the de-duplicated definition list, and never change
// for the lifetime of the registry.
type Registry struct {
	defs      []*action.Definition
	byName    map[string]action.ID
	factories map[string]Factory

	Digest string
}

type file struct {
	Actions []action.Definition `yaml:"actions"`
}

// Load reads actions.yaml.
func Load(path string, factories map[string]Factory) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}
	r, err := New(f.Actions, factories)
	if err != nil {
		return nil, fmt.Errorf("actions.yaml: %w", err)
	}
	return r, nil
}

// New registers defs. A later definition with a name already seen is skipped.
func New(defs []action.Definition, factories map[string]Factory) (*Registry, error) {
	r := &Registry{
		byName:    map[string]action.ID{},
		factories: factories,
	}
	for i := range defs {
		d := defs[i]
		if _, dup := r.byName[d.Name]; dup {
			continue
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := factories[d.Behavior]; !ok {
			return nil, fmt.Errorf("action %s: %w %q", d.Name, ErrUnknownBehavior, d.Behavior)
		}
		d.Params = cloneParams(d.Params)
		r.byName[d.Name] = action.ID(len(r.defs))
		r.defs = append(r.defs, &d)
	}

	canon, err := json.Marshal(r.defs)
	if err != nil {
		return nil, err
	}
	r.Digest = sha256Hex(canon)
	return r, nil
}

// FromCatalog rebuilds a registry from a CATALOG message. Ids must be contiguous and in
// order, and the digest must match what the server announced.
func FromCatalog(msg protocol.CatalogMsg, factories map[string]Factory) (*Registry, error) {
	defs := make([]action.Definition, 0, len(msg.Actions))
	for i, a := range msg.Actions {
		if int(a.ID) != i {
			return nil, fmt.Errorf("catalog: action %q has id %d at position %d", a.Name, a.ID, i)
		}
		mode, err := action.ParseBlockingMode(a.BlockingMode)
		if err != nil {
			return nil, fmt.Errorf("catalog: action %s: %w", a.Name, err)
		}
		defs = append(defs, action.Definition{
			Name:            a.Name,
			Behavior:        a.Behavior,
			DurationSeconds: a.DurationSeconds,
			ExecTimeSeconds: a.ExecTimeSeconds,
			Radius:          a.Radius,
			Anticipatable:   a.Anticipatable,
			BlockingMode:    mode,
			Params:          a.Params,
		})
	}
	r, err := New(defs, factories)
	if err != nil {
		return nil, err
	}
	if r.Len() != len(msg.Actions) {
		return nil, fmt.Errorf("catalog: duplicate action names")
	}
	if msg.Digest != "" && msg.Digest != r.Digest {
		return nil, fmt.Errorf("catalog: digest mismatch: got %s want %s", r.Digest, msg.Digest)
	}
	return r, nil
}

// Resolve implements action.Resolver.
func (r *Registry) Resolve(id action.ID) (action.Prototype, error) {
	if r == nil {
		return action.Prototype{}, action.ErrRegistryNotReady
	}
	if id < 0 || int(id) >= len(r.defs) {
		return action.Prototype{}, fmt.Errorf("%w: %v", action.ErrUnknownAction, id)
	}
	def := r.defs[id]
	return action.Prototype{Definition: def, New: r.factories[def.Behavior]}, nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.defs)
}

func (r *Registry) Lookup(name string) (action.ID, bool) {
	if r == nil {
		return 0, false
	}
	id, ok := r.byName[name]
	return id, ok
}

func (r *Registry) Definition(id action.ID) (*action.Definition, bool) {
	if r == nil || id < 0 || int(id) >= len(r.defs) {
		return nil, false
	}
	return r.defs[id], true
}

// Names returns the action names in id order.
func (r *Registry) Names() []string {
	out := make([]string, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		out = append(out, r.defs[i].Name)
	}
	return out
}

// Behaviors returns the distinct behavior kinds in use, sorted.
func (r *Registry) Behaviors() []string {
	seen := map[string]bool{}
	for i := 0; i < r.Len(); i++ {
		seen[r.defs[i].Behavior] = true
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// CatalogMsg is what the server sends right after WELCOME.
func (r *Registry) CatalogMsg() protocol.CatalogMsg {
	msg := protocol.CatalogMsg{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Actions:         make([]protocol.ActionDefJSON, 0, r.Len()),
	}
	if r == nil {
		return msg
	}
	msg.Digest = r.Digest
	for i, d := range r.defs {
		msg.Actions = append(msg.Actions, protocol.ActionDefJSON{
			ID:              action.ID(i),
			Name:            d.Name,
			Behavior:        d.Behavior,
			DurationSeconds: d.DurationSeconds,
			ExecTimeSeconds: d.ExecTimeSeconds,
			Radius:          d.Radius,
			Anticipatable:   d.Anticipatable,
			BlockingMode:    d.BlockingMode.String(),
			Params:          cloneParams(d.Params),
		})
	}
	return msg
}

func cloneParams(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
