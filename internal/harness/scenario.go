package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tmkoller/peridyn/internal/config"
)

// Scenario defines a conformance scenario: a configuration plus a flow
// of topology operations and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ConfigPath points at the run configuration, relative to the
	// scenario file.
	ConfigPath string `yaml:"config"`

	// Steps is the operation flow, executed in order on every
	// partition together.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final topology after the flow.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Config is the loaded configuration, resolved by LoadScenario.
	Config *config.Config `yaml:"-"`
}

// Step is one operation in the flow.
type Step struct {
	// Op selects the operation:
	//   ghosts      rebuild the ghost layer and forward plan
	//   build       find candidates and build the bond topology
	//   displace    move one particle by Delta
	//   break       tombstone the bond between Tag and Partner
	//   migrate     transfer ownership of particles that left their slab
	//   resync      rebuild ghosts and push bond scalars to them
	//   checkpoint  write every partition's stream to the archive
	//   restore     replace live state with the archived streams
	Op string `yaml:"op"`

	// Tag selects the particle for displace and break.
	Tag int64 `yaml:"tag,omitempty"`

	// Partner is the bonded neighbor for break.
	Partner int64 `yaml:"partner,omitempty"`

	// Delta is the displacement for displace.
	Delta []float64 `yaml:"delta,omitempty"`

	// Step labels the checkpoint round for checkpoint and restore.
	Step int `yaml:"step,omitempty"`
}

// Assertion validates the final topology.
type Assertion struct {
	// Type specifies the assertion:
	//   owner         Tag is owned by partition Rank
	//   live_bonds    Tag's row holds Count intact bonds
	//   global_bonds  the partitions together hold Count intact row entries
	Type string `yaml:"type"`

	// Tag selects the particle (owner, live_bonds).
	Tag int64 `yaml:"tag,omitempty"`

	// Rank is the expected owner (owner).
	Rank int `yaml:"rank,omitempty"`

	// Count is the expected bond count (live_bonds, global_bonds).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOwner       = "owner"
	AssertLiveBonds   = "live_bonds"
	AssertGlobalBonds = "global_bonds"
)

// stepOps are the operations a flow may use.
var stepOps = map[string]bool{
	"ghosts":     true,
	"build":      true,
	"displace":   true,
	"break":      true,
	"migrate":    true,
	"resync":     true,
	"checkpoint": true,
	"restore":    true,
}

// LoadScenario reads and parses a scenario file, loading the referenced
// configuration relative to the scenario's directory. Unknown fields and
// malformed flows are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typoed fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	cfgPath := scenario.ConfigPath
	if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(filepath.Dir(path), cfgPath)
	}
	scenario.Config, err = config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading scenario config: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and per-operation arguments.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.ConfigPath == "" {
		return fmt.Errorf("config is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !stepOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		switch step.Op {
		case "displace":
			if step.Tag <= 0 {
				return fmt.Errorf("steps[%d]: displace requires a positive tag", i)
			}
			if len(step.Delta) != 3 {
				return fmt.Errorf("steps[%d]: displace requires a 3-entry delta", i)
			}
		case "break":
			if step.Tag <= 0 || step.Partner <= 0 {
				return fmt.Errorf("steps[%d]: break requires positive tag and partner", i)
			}
		case "checkpoint", "restore":
			if step.Step < 0 {
				return fmt.Errorf("steps[%d]: %s requires a non-negative step label", i, step.Op)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertOwner:
		if a.Tag <= 0 {
			return fmt.Errorf("assertions[%d]: owner requires a positive tag", index)
		}
		if a.Rank < 0 {
			return fmt.Errorf("assertions[%d]: owner requires a non-negative rank", index)
		}
	case AssertLiveBonds:
		if a.Tag <= 0 {
			return fmt.Errorf("assertions[%d]: live_bonds requires a positive tag", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: live_bonds requires a non-negative count", index)
		}
	case AssertGlobalBonds:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: global_bonds requires a non-negative count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
