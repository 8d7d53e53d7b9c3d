package harness

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tmkoller/peridyn/internal/bond"
	"github.com/tmkoller/peridyn/internal/checkpoint"
	"github.com/tmkoller/peridyn/internal/comm"
	"github.com/tmkoller/peridyn/internal/domain"
	"github.com/tmkoller/peridyn/internal/neighbor"
	"github.com/tmkoller/peridyn/internal/particle"
)

// rankState is one partition's final topology, collected after the flow
// for assertion evaluation.
type rankState struct {
	owners map[int64]int
	live   map[int64]int
	total  int
}

// Run executes a scenario and returns the merged result.
//
// Every partition runs the same flow in lockstep over an in-process
// group. Checkpoint steps go to a fresh in-memory archive, so scenarios
// are fully isolated from each other.
func Run(scenario *Scenario) (*Result, error) {
	cfg := scenario.Config
	if cfg == nil {
		return nil, fmt.Errorf("scenario %q has no loaded config", scenario.Name)
	}
	ctx := context.Background()

	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("building horizon table: %w", err)
	}
	influence, err := bond.ParseInfluence(cfg.Influence)
	if err != nil {
		return nil, err
	}
	box := cfg.Box()
	decomp, err := domain.NewSlabDecomposition(box, cfg.Partitions)
	if err != nil {
		return nil, err
	}
	specs := cfg.Particles()
	ghostCut := table.MaxCut() + cfg.SkinOrDefault()

	var arch *checkpoint.Archive
	var runID string
	if needsArchive(scenario.Steps) {
		arch, err = checkpoint.OpenArchive(":memory:")
		if err != nil {
			return nil, err
		}
		defer arch.Close()
		run, err := arch.CreateRun(ctx, scenario.Name, cfg.Partitions)
		if err != nil {
			return nil, err
		}
		runID = run.ID
	}

	events := make([][]TraceEvent, cfg.Partitions)
	states := make([]rankState, cfg.Partitions)

	err = comm.RunGroup(ctx, cfg.Partitions, func(ctx context.Context, c comm.Communicator) error {
		rank := c.Rank()

		ps := particle.NewStore()
		for _, p := range specs {
			if decomp.Owner(p.X) != rank {
				continue
			}
			if _, err := ps.AddLocal(p.Tag, p.Type, p.X, p.X, p.Vfrac); err != nil {
				return err
			}
		}

		managerOpts := []bond.Option{
			bond.WithInfluence(influence),
			bond.WithLatticeSpacing(cfg.Lattice.Spacing),
			bond.WithPeriodicDomain(box.AnyPeriodic()),
			bond.WithStoreOptions(bond.WithMemoryBudget(cfg.MemoryBudgetBytes)),
		}
		mgr, err := bond.NewManager(ps, c, table, managerOpts...)
		if err != nil {
			return err
		}
		finder, err := neighbor.NewFinder(neighbor.WithSkin(cfg.SkinOrDefault()))
		if err != nil {
			return err
		}

		for i, step := range scenario.Steps {
			var note string
			switch step.Op {
			case "ghosts":
				plan, err := domain.BuildGhosts(ctx, c, decomp, ps, ghostCut)
				if err != nil {
					return err
				}
				mgr.SetForwardPlan(plan)
				note = fmt.Sprintf("nlocal=%d nghost=%d", ps.Nlocal(), ps.Nghost())

			case "build":
				list := finder.Build(ps, table.MaxCut())
				if err := mgr.Setup(ctx, list.Neigh); err != nil {
					return err
				}
				stats := mgr.Stats()
				note = fmt.Sprintf("bonds=%d max_partner=%d", stats.Bonds, stats.MaxPartner)

			case "displace":
				moved := false
				if slot, ok := ps.Slot(step.Tag); ok && slot < ps.Nlocal() {
					x := ps.X()
					x[slot][0] += step.Delta[0]
					x[slot][1] += step.Delta[1]
					x[slot][2] += step.Delta[2]
					moved = true
				}
				note = fmt.Sprintf("moved=%t", moved)

			case "break":
				broken, err := breakPair(ps, mgr.Store(), step.Tag, step.Partner)
				if err != nil {
					return err
				}
				note = fmt.Sprintf("tombstoned=%d", broken)

			case "migrate":
				stats, err := domain.Migrate(ctx, c, decomp, ps)
				if err != nil {
					return err
				}
				note = fmt.Sprintf("sent=%d received=%d", stats.Sent, stats.Received)

			case "resync":
				plan, err := domain.BuildGhosts(ctx, c, decomp, ps, ghostCut)
				if err != nil {
					return err
				}
				mgr.SetForwardPlan(plan)
				if err := mgr.SyncGhosts(ctx); err != nil {
					return err
				}
				note = fmt.Sprintf("nghost=%d", ps.Nghost())

			case "checkpoint":
				var buf bytes.Buffer
				if err := checkpoint.WriteStream(&buf, rank, c.Size(), ps, mgr.Store()); err != nil {
					return err
				}
				if err := arch.PutStream(ctx, runID, step.Step, rank, buf.Bytes()); err != nil {
					return err
				}
				note = fmt.Sprintf("bytes=%d", buf.Len())

			case "restore":
				data, err := arch.GetStream(ctx, runID, step.Step, rank)
				if err != nil {
					return err
				}
				restored := particle.NewStore()
				restoredMgr, err := bond.NewManager(restored, c, table, managerOpts...)
				if err != nil {
					return err
				}
				hdr, err := checkpoint.ReadStream(bytes.NewReader(data), restored, restoredMgr.Store())
				if err != nil {
					return err
				}
				mgr.Close()
				ps, mgr = restored, restoredMgr
				note = fmt.Sprintf("restored=%d", hdr.Particles)

			default:
				return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
			}

			events[rank] = append(events[rank], TraceEvent{
				Step: i,
				Op:   step.Op,
				Rank: rank,
				Note: note,
			})
		}

		states[rank] = collectState(ps, mgr.Store(), rank)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for step := range scenario.Steps {
		for rank := 0; rank < cfg.Partitions; rank++ {
			result.Trace = append(result.Trace, events[rank][step])
		}
	}
	evaluateAssertions(states, scenario.Assertions, result)
	return result, nil
}

func needsArchive(steps []Step) bool {
	for _, s := range steps {
		if s.Op == "checkpoint" || s.Op == "restore" {
			return true
		}
	}
	return false
}

// breakPair tombstones the directed entries between two tags wherever
// this partition owns the row. Rows on other partitions are theirs to
// tombstone; the flow runs the step on every partition, so both ends go.
func breakPair(ps *particle.Store, bs *bond.Store, tag, partner int64) (int, error) {
	broken := 0
	for _, pair := range [2][2]int64{{tag, partner}, {partner, tag}} {
		slot, ok := ps.Slot(pair[0])
		if !ok || slot >= ps.Nlocal() {
			continue
		}
		row := bs.PartnerRow(slot)
		for k, p := range row {
			if p != pair[1] {
				continue
			}
			if err := bs.Break(slot, k); err != nil {
				return broken, err
			}
			broken++
		}
	}
	return broken, nil
}

func collectState(ps *particle.Store, bs *bond.Store, rank int) rankState {
	st := rankState{
		owners: make(map[int64]int, ps.Nlocal()),
		live:   make(map[int64]int, ps.Nlocal()),
	}
	tags := ps.Tags()
	for slot := 0; slot < ps.Nlocal(); slot++ {
		n := bs.LiveBonds(slot)
		st.owners[tags[slot]] = rank
		st.live[tags[slot]] = n
		st.total += n
	}
	return st
}

// evaluateAssertions checks the scenario's assertions against the merged
// final state, recording each failure on the result.
func evaluateAssertions(states []rankState, assertions []Assertion, result *Result) {
	owners := make(map[int64]int)
	live := make(map[int64]int)
	total := 0
	for _, st := range states {
		for tag, rank := range st.owners {
			owners[tag] = rank
		}
		for tag, n := range st.live {
			live[tag] = n
		}
		total += st.total
	}

	for _, a := range assertions {
		switch a.Type {
		case AssertOwner:
			got, ok := owners[a.Tag]
			if !ok {
				result.AddError(fmt.Sprintf("owner: tag %d is not owned by any partition", a.Tag))
			} else if got != a.Rank {
				result.AddError(fmt.Sprintf("owner: tag %d owned by rank %d, want %d", a.Tag, got, a.Rank))
			}
		case AssertLiveBonds:
			got, ok := live[a.Tag]
			if !ok {
				result.AddError(fmt.Sprintf("live_bonds: tag %d is not owned by any partition", a.Tag))
			} else if got != a.Count {
				result.AddError(fmt.Sprintf("live_bonds: tag %d holds %d intact bonds, want %d", a.Tag, got, a.Count))
			}
		case AssertGlobalBonds:
			if total != a.Count {
				result.AddError(fmt.Sprintf("global_bonds: partitions hold %d intact row entries, want %d", total, a.Count))
			}
		}
	}
}
