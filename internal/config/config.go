// Package config loads and validates run configuration files.
//
// A configuration is a YAML document checked twice: first against the
// embedded CUE schema, which owns the per-field shape and range rules,
// then by Go code for the cross-field rules the schema cannot express
// (box geometry, material numbering, horizon completeness).
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/tmkoller/peridyn/internal/domain"
	"github.com/tmkoller/peridyn/internal/horizon"
	"github.com/tmkoller/peridyn/internal/neighbor"
)

//go:embed schema.cue
var schemaSource string

// Config describes one run: the box, the initial lattice, the material
// table, and the knobs for partitioning and bond construction.
type Config struct {
	// Name labels the run in logs and in the checkpoint archive.
	Name string `yaml:"name"`

	// Domain is the global simulation box.
	Domain DomainConfig `yaml:"domain"`

	// Lattice places the initial particles on a simple cubic grid.
	Lattice LatticeConfig `yaml:"lattice"`

	// Materials declares the particle types. Entries must be numbered
	// 1..len(materials), each type exactly once.
	Materials []MaterialConfig `yaml:"materials"`

	// Pairs sets the bond cutoff for cross-type pairs. With a single
	// material the diagonal entry suffices; with several, every cross
	// pair must appear here (there is no mixing rule).
	Pairs []PairConfig `yaml:"pairs,omitempty"`

	// Influence selects the bond weight function: "uniform" (the
	// default) or "inverse-distance".
	Influence string `yaml:"influence,omitempty"`

	// Partitions is the number of slab partitions to run. Defaults to 1.
	Partitions int `yaml:"partitions,omitempty"`

	// Skin pads the candidate search cutoff. If absent, defaults to the
	// finder's standard skin.
	Skin *float64 `yaml:"skin,omitempty"`

	// MemoryBudgetBytes caps the bond table allocation per partition.
	// Zero means no cap.
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes,omitempty"`
}

// DomainConfig is the global box, half-open per dimension.
type DomainConfig struct {
	Lo       []float64 `yaml:"lo"`
	Hi       []float64 `yaml:"hi"`
	Periodic []bool    `yaml:"periodic,omitempty"`
}

// LatticeConfig fills the box with particles of one declared type,
// spaced evenly from the low corner.
type LatticeConfig struct {
	Spacing float64 `yaml:"spacing"`

	// Type is the material type of the generated particles. Defaults
	// to 1.
	Type int `yaml:"type,omitempty"`
}

// MaterialConfig declares one particle type.
type MaterialConfig struct {
	Type    int     `yaml:"type"`
	Horizon float64 `yaml:"horizon"`
	Vfrac   float64 `yaml:"vfrac"`
}

// PairConfig overrides the bond cutoff for one type pair.
type PairConfig struct {
	Types   []int   `yaml:"types"`
	Horizon float64 `yaml:"horizon"`
}

// Load reads, schema-checks, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse schema-checks and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // reject typoed fields
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// checkSchema unifies the raw document with the embedded #Config
// definition and requires the result to be concrete.
func checkSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("config is empty")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("config schema has no #Config definition")
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config does not satisfy schema: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Lattice.Type == 0 {
		c.Lattice.Type = 1
	}
	if c.Influence == "" {
		c.Influence = "uniform"
	}
	if c.Partitions == 0 {
		c.Partitions = 1
	}
	if c.Domain.Periodic == nil {
		c.Domain.Periodic = []bool{false, false, false}
	}
}

// validate covers the cross-field rules the schema cannot express.
func (c *Config) validate() error {
	if len(c.Domain.Lo) != 3 || len(c.Domain.Hi) != 3 || len(c.Domain.Periodic) != 3 {
		return fmt.Errorf("domain lo, hi, and periodic must each hold 3 entries")
	}
	box := c.Box()
	if err := box.Validate(); err != nil {
		return err
	}

	seen := make(map[int]bool, len(c.Materials))
	for _, m := range c.Materials {
		if m.Type < 1 || m.Type > len(c.Materials) {
			return fmt.Errorf("material type %d out of range 1..%d", m.Type, len(c.Materials))
		}
		if seen[m.Type] {
			return fmt.Errorf("material type %d declared twice", m.Type)
		}
		seen[m.Type] = true
	}

	if _, ok := c.Material(c.Lattice.Type); !ok {
		return fmt.Errorf("lattice type %d has no material entry", c.Lattice.Type)
	}
	for _, p := range c.Pairs {
		if len(p.Types) != 2 {
			return fmt.Errorf("pair entry must name exactly 2 types, got %d", len(p.Types))
		}
	}

	// Building the table proves the pair coverage is complete.
	if _, err := c.Table(); err != nil {
		return err
	}
	return nil
}

// Box converts the domain section.
func (c *Config) Box() domain.Box {
	var b domain.Box
	copy(b.Lo[:], c.Domain.Lo)
	copy(b.Hi[:], c.Domain.Hi)
	copy(b.Periodic[:], c.Domain.Periodic)
	return b
}

// Material returns the entry declaring the given type.
func (c *Config) Material(typ int) (MaterialConfig, bool) {
	for _, m := range c.Materials {
		if m.Type == typ {
			return m, true
		}
	}
	return MaterialConfig{}, false
}

// Table assembles the per-type-pair cutoff table from the material and
// pair sections. Every pair must end up covered.
func (c *Config) Table() (*horizon.Table, error) {
	table, err := horizon.NewTable(len(c.Materials))
	if err != nil {
		return nil, err
	}
	for _, m := range c.Materials {
		if err := table.Set(m.Type, m.Type, m.Horizon); err != nil {
			return nil, fmt.Errorf("material type %d: %w", m.Type, err)
		}
	}
	for _, p := range c.Pairs {
		if err := table.Set(p.Types[0], p.Types[1], p.Horizon); err != nil {
			return nil, fmt.Errorf("pair (%d,%d): %w", p.Types[0], p.Types[1], err)
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// SkinOrDefault returns the candidate search skin.
func (c *Config) SkinOrDefault() float64 {
	if c.Skin != nil {
		return *c.Skin
	}
	return neighbor.DefaultSkin
}
