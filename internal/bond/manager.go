package bond

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/tmkoller/peridyn/internal/comm"
	"github.com/tmkoller/peridyn/internal/horizon"
	"github.com/tmkoller/peridyn/internal/particle"
)

// Manager owns one partition's bond topology and drives its lifecycle:
// the one-time build, the duplicate guard, the weighted-volume pass, and
// ghost refreshes. It registers its Store with the particle store so
// migration and checkpoints carry the topology automatically.
type Manager struct {
	log       *slog.Logger
	particles *particle.Store
	comm      comm.Communicator
	table     *horizon.Table
	store     *Store
	influence Influence
	lattice   float64
	periodic  bool
	plan      comm.ForwardPlan
	stats     BuildStats
}

// BuildStats summarizes a completed build. Bonds counts per-particle
// partner entries, so a pair bond contributes once per endpoint.
type BuildStats struct {
	Particles  int64
	Bonds      int64
	MaxPartner int
}

// BondsPerParticle returns the mean partner count.
func (s BuildStats) BondsPerParticle() float64 {
	if s.Particles == 0 {
		return 0
	}
	return float64(s.Bonds) / float64(s.Particles)
}

// Option configures a Manager.
type Option func(*Manager)

// WithInfluence selects the influence model. Default is Uniform.
func WithInfluence(in Influence) Option {
	return func(m *Manager) { m.influence = in }
}

// WithLatticeSpacing sets the lattice spacing the partial-volume blend is
// scaled by. Default is 1.
func WithLatticeSpacing(spacing float64) Option {
	return func(m *Manager) { m.lattice = spacing }
}

// WithPeriodicDomain enables the duplicate-bond guard. Only periodic
// wrap-around can produce duplicates, so aperiodic domains skip the scan.
func WithPeriodicDomain(periodic bool) Option {
	return func(m *Manager) { m.periodic = periodic }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithStoreOptions forwards options to the underlying Store.
func WithStoreOptions(opts ...StoreOption) Option {
	return func(m *Manager) { m.store = NewStore(opts...) }
}

// NewManager creates a manager over the given particles and registers its
// store for migration and checkpoint traffic. Call Close to unregister.
func NewManager(ps *particle.Store, c comm.Communicator, table *horizon.Table, opts ...Option) (*Manager, error) {
	m := &Manager{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		particles: ps,
		comm:      c,
		table:     table,
		influence: Uniform{},
		lattice:   1.0,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewStore()
	}
	if err := ps.Register(m.store); err != nil {
		return nil, fmt.Errorf("registering bond store: %w", err)
	}
	return m, nil
}

// Store exposes the managed bond store.
func (m *Manager) Store() *Store { return m.store }

// Stats returns the statistics of the last completed build.
func (m *Manager) Stats() BuildStats { return m.stats }

// Close unregisters the bond store from the particle store.
func (m *Manager) Close() { m.particles.Unregister(m.store) }

// SetForwardPlan installs the ghost exchange plan matching the current
// ghost layout. SyncGhosts uses it until the next ghost build.
func (m *Manager) SetForwardPlan(plan comm.ForwardPlan) { m.plan = plan }

// Setup builds the topology from the candidate list: candidates[i] holds
// the candidate slots, local or ghost, of local slot i. The list may be
// over-inclusive; the horizon test decides. Setup sizes the global
// partner bound collectively before populating, checks for duplicates
// under periodic boundaries, accumulates weighted volumes, and refreshes
// ghosts. A built topology is never rebuilt: Setup is a no-op then.
func (m *Manager) Setup(ctx context.Context, candidates [][]int) error {
	if m.store.built {
		m.log.Debug("bond topology already built, setup skipped", "rank", m.comm.Rank())
		return nil
	}
	if err := m.table.Validate(); err != nil {
		return err
	}
	nlocal := m.particles.Nlocal()
	if len(candidates) != nlocal {
		return fmt.Errorf("bond: candidate list covers %d particles, partition owns %d", len(candidates), nlocal)
	}

	// Sizing pass: count qualifying neighbors, agree on the bound, grow
	// everywhere before a single bond is written.
	localMax := 0
	for i, cand := range candidates {
		d := 0
		for _, j := range cand {
			if m.qualifies(i, j) {
				d++
			}
		}
		if d > localMax {
			localMax = d
		}
	}
	bound, err := m.comm.AllreduceMaxInt(ctx, localMax)
	if err != nil {
		return fmt.Errorf("agreeing on partner bound: %w", err)
	}
	if bound < 1 {
		bound = 1
	}
	if err := m.store.GrowBound(bound); err != nil {
		return err
	}
	m.log.Debug("partner bound agreed", "rank", m.comm.Rank(), "local_max", localMax, "bound", bound)

	// Population pass over the same candidates.
	tags := m.particles.Tags()
	x := m.particles.X()
	vfrac := m.particles.Vfrac()
	for i, cand := range candidates {
		for _, j := range cand {
			if !m.qualifies(i, j) {
				continue
			}
			dx := x[i][0] - x[j][0]
			dy := x[i][1] - x[j][1]
			dz := x[i][2] - x[j][2]
			r := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if err := m.store.AppendBond(i, tags[j], r); err != nil {
				return err
			}
			m.store.AddVinter(i, vfrac[j])
		}
	}

	if m.periodic {
		if err := m.checkDuplicates(); err != nil {
			return err
		}
	}

	m.computeWeightedVolume()
	if err := m.SyncGhosts(ctx); err != nil {
		return err
	}
	m.store.built = true

	localBonds := int64(0)
	for i := 0; i < nlocal; i++ {
		localBonds += int64(m.store.Count(i))
	}
	totalBonds, err := m.comm.AllreduceSumInt64(ctx, localBonds)
	if err != nil {
		return fmt.Errorf("summing bond statistics: %w", err)
	}
	totalParticles, err := m.comm.AllreduceSumInt64(ctx, int64(nlocal))
	if err != nil {
		return fmt.Errorf("summing particle statistics: %w", err)
	}
	m.stats = BuildStats{Particles: totalParticles, Bonds: totalBonds, MaxPartner: bound}
	if m.comm.Rank() == 0 {
		m.log.Info("bond topology built",
			"particles", totalParticles,
			"bonds", totalBonds,
			"bonds_per_particle", m.stats.BondsPerParticle(),
			"max_partner", bound)
	}
	return nil
}

// qualifies applies the horizon test to a local slot and a candidate
// slot. The test is inclusive: a separation exactly at the cutoff bonds.
func (m *Manager) qualifies(i, j int) bool {
	if i == j {
		return false
	}
	x := m.particles.X()
	types := m.particles.Types()
	dx := x[i][0] - x[j][0]
	dy := x[i][1] - x[j][1]
	dz := x[i][2] - x[j][2]
	rsq := dx*dx + dy*dy + dz*dz
	return rsq <= m.table.Cutsq(types[i], types[j])
}
