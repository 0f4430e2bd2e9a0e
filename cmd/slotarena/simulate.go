package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/slotarena/internal/config"
	"github.com/23skdu/slotarena/internal/memory"
)

var (
	simFrames int
	simSpawn  int
	simRetain float64
	simTTL    int
	simSeed   uint64
	simHold   bool
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().IntVar(&simFrames, "frames", 100, "Number of frames to run")
	cmd.Flags().IntVar(&simSpawn, "spawn", 8, "Nodes allocated per frame")
	cmd.Flags().Float64Var(&simRetain, "retain", 0.25, "Probability a new node becomes a root")
	cmd.Flags().IntVar(&simTTL, "ttl", 10, "Frames a root stays reachable")
	cmd.Flags().Uint64Var(&simSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&simHold, "hold", false, "Keep serving metrics after the run until interrupted")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Drive mark/sweep cycles against a typed pool",
		Long: `The simulate command allocates nodes into a pool every frame, links each
to a random live parent, keeps a random subset as roots for a number of
frames, and reclaims everything else with ClearMarks/Mark/Sweep.

When SLOTARENA_METRICS_ADDR is set the Prometheus endpoint is served for the
duration of the run.

Example:
  slotarena simulate --frames 500 --spawn 16 --retain 0.1
  SLOTARENA_METRICS_ADDR=:9090 slotarena simulate --hold`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			env, flush, err := newEnv(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer flush()

			opts := simOptions{
				Frames: simFrames,
				Spawn:  simSpawn,
				Retain: simRetain,
				TTL:    simTTL,
				Seed:   simSeed,
			}
			if cfg.MetricsAddr == "" {
				res, err := runSimulation(cmd.Context(), cfg, env, opts)
				if err != nil {
					return err
				}
				return printSimulation(cmd.OutOrStdout(), res)
			}

			logger := newLogger(cfg)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info().Str("address", cfg.MetricsAddr).Msg("Starting metrics server")
				return serveMetrics(gctx, cfg.MetricsAddr)
			})
			var res simResult
			g.Go(func() error {
				var err error
				res, err = runSimulation(gctx, cfg, env, opts)
				if err != nil {
					return err
				}
				if simHold {
					<-gctx.Done()
				}
				cancel()
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}
			return printSimulation(cmd.OutOrStdout(), res)
		},
	}
}

// simNode is the element type stored in the simulated pool. Parent links
// are handles, so the node holds no Go pointers.
type simNode struct {
	Parent    memory.Handle
	HasParent bool
	Born      int32
	Weight    float32
}

type simOptions struct {
	Frames int
	Spawn  int
	Retain float64
	TTL    int
	Seed   uint64
}

type simRoot struct {
	handle  memory.Handle
	expires int
}

type simResult struct {
	Frames    int    `json:"frames"`
	Allocated int    `json:"allocated"`
	Swept     int    `json:"swept"`
	PeakLive  int    `json:"peak_live"`
	FinalLive int    `json:"final_live"`
	Roots     int    `json:"roots"`
	Arena     string `json:"arena"`
	Pool      string `json:"pool"`

	SnapshotRows  int     `json:"snapshot_rows"`
	SnapshotBytes int     `json:"snapshot_bytes"`
	LiveWeight    float64 `json:"live_weight"`
}

func runSimulation(ctx context.Context, cfg config.Config, env *memory.Env, opts simOptions) (simResult, error) {
	if opts.Frames < 0 || opts.Spawn < 0 || opts.TTL < 0 || opts.Retain < 0 || opts.Retain > 1 {
		return simResult{}, fmt.Errorf("invalid simulation options %+v", opts)
	}
	arena, err := memory.NewArena(cfg.ArenaCapacity, cfg.ArenaName,
		memory.WithEnv(env), memory.WithBacking(cfg.Backing()))
	if err != nil {
		return simResult{}, err
	}
	defer func() { _ = arena.Release() }()

	nodes, err := memory.NewTypedPool[simNode](arena, cfg.PoolCapacity)
	if err != nil {
		return simResult{}, err
	}
	pool := nodes.Pool()
	// Hand the pages past the pool back to the OS on mmap backing.
	if err := arena.Trim(); err != nil {
		return simResult{}, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	var roots []simRoot
	res := simResult{Frames: opts.Frames}
	for frame := 1; frame <= opts.Frames; frame++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		epoch := int32(frame)

		for i := 0; i < opts.Spawn; i++ {
			h, n, err := nodes.Calloc()
			if err != nil {
				return res, err
			}
			res.Allocated++
			n.Born = epoch
			n.Weight = rng.Float32()
			if len(roots) > 0 {
				n.Parent = roots[rng.IntN(len(roots))].handle
				n.HasParent = true
			}
			if rng.Float64() < opts.Retain {
				roots = append(roots, simRoot{handle: h, expires: frame + opts.TTL})
			}
		}
		if live := pool.Count(); live > res.PeakLive {
			res.PeakLive = live
		}

		kept := roots[:0]
		for _, r := range roots {
			if r.expires > frame {
				kept = append(kept, r)
			}
		}
		roots = kept

		if err := pool.ClearMarks(); err != nil {
			return res, err
		}
		for _, r := range roots {
			if err := markChain(nodes, r.handle, epoch); err != nil {
				return res, err
			}
		}
		freed, err := pool.SweepCollect(epoch)
		if err != nil {
			return res, err
		}
		res.Swept += int(freed.GetCardinality())
		memory.ReleaseBitmap(freed)
	}

	res.FinalLive = pool.Count()
	res.Roots = len(roots)
	res.Arena = arena.DebugString()
	res.Pool = pool.DebugString()
	env.PrintDebug()

	snap, err := snapshotWeights(env, cfg.ArenaName+"-weights", nodes)
	if err != nil {
		return res, err
	}
	res.SnapshotRows = snap.Rows
	res.SnapshotBytes = snap.Bytes
	res.LiveWeight = snap.Sum
	return res, nil
}

type weightSnapshot struct {
	Rows  int
	Bytes int
	Sum   float64
}

// snapshotWeights copies the weight of every live node into an Arrow column
// built on a scratch arena, and reports the column's length, the arena bytes
// it took and the sum of its values.
func snapshotWeights(env *memory.Env, name string, nodes *memory.TypedPool[simNode]) (snap weightSnapshot, err error) {
	live := nodes.Pool().Live()
	defer memory.ReleaseBitmap(live)
	n := int(live.GetCardinality())

	// Builders round capacity up to a power of two and buffers to 64 bytes.
	scratch, err := memory.NewArena(9*n+1024, name, memory.WithEnv(env))
	if err != nil {
		return snap, err
	}
	defer func() { _ = scratch.Release() }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("weight snapshot: %v", r)
		}
	}()

	alloc := memory.NewArrowAllocator(scratch)
	b := array.NewFloat32Builder(alloc)
	defer b.Release()
	b.Reserve(n)
	it := live.Iterator()
	for it.HasNext() {
		b.Append(nodes.At(int(it.Next())).Weight)
	}
	col := b.NewFloat32Array()
	defer col.Release()

	for _, w := range col.Float32Values() {
		snap.Sum += float64(w)
	}
	snap.Rows = col.Len()
	snap.Bytes = scratch.Used()
	return snap, nil
}

// markChain marks h and its ancestors, stopping at the first node that is
// already marked in this cycle.
func markChain(nodes *memory.TypedPool[simNode], h memory.Handle, epoch int32) error {
	pool := nodes.Pool()
	for {
		marked, err := pool.IsMarked(h)
		if err != nil {
			return err
		}
		if marked {
			return nil
		}
		if err := pool.Mark(h, epoch); err != nil {
			return err
		}
		n, err := nodes.Get(h)
		if err != nil {
			return err
		}
		if !n.HasParent {
			return nil
		}
		h = n.Parent
	}
}

func printSimulation(w io.Writer, res simResult) error {
	if jsonOut {
		return printJSON(w, res)
	}
	printInfo(w, "frames     %d\n", res.Frames)
	printInfo(w, "allocated  %d\n", res.Allocated)
	printInfo(w, "swept      %d\n", res.Swept)
	printInfo(w, "peak live  %d\n", res.PeakLive)
	printInfo(w, "final live %d (%d roots)\n", res.FinalLive, res.Roots)
	printInfo(w, "%s\n%s\n", res.Arena, res.Pool)
	printInfo(w, "snapshot   %d rows, %d bytes, weight %.3f\n", res.SnapshotRows, res.SnapshotBytes, res.LiveWeight)
	return nil
}
