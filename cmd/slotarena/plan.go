package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/23skdu/slotarena/internal/config"
	"github.com/23skdu/slotarena/internal/memory"
)

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the layout of the configured arena and pool",
		Long: `The plan command builds the configured arena and pool and reports how
much of the arena the pool's slot storage and entry table take.

Example:
  SLOTARENA_POOL_SLOT_SIZE=12 SLOTARENA_POOL_CAPACITY=3 slotarena plan
  slotarena plan --json`,
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
			p, err := buildPlan(cfg, env)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), p)
		},
	}
}

// Plan describes a pool laid out inside an arena.
type Plan struct {
	Arena           string `json:"arena"`
	ArenaCapacity   int    `json:"arena_capacity"`
	Backing         string `json:"backing"`
	TypeTag         string `json:"type_tag"`
	SlotSize        int    `json:"slot_size"`
	AlignedSlotSize int    `json:"aligned_slot_size"`
	MaxCount        int    `json:"max_count"`
	SlotBytes       int    `json:"slot_bytes"`
	PoolBytes       int    `json:"pool_bytes"`
	Remaining       int    `json:"remaining"`
	Usage           string `json:"usage"`
}

func buildPlan(cfg config.Config, env *memory.Env) (Plan, error) {
	arena, err := memory.NewArena(cfg.ArenaCapacity, cfg.ArenaName,
		memory.WithEnv(env), memory.WithBacking(cfg.Backing()))
	if err != nil {
		return Plan{}, err
	}
	defer func() { _ = arena.Release() }()

	pool, err := memory.NewPool(arena, cfg.PoolSlotSize, cfg.PoolCapacity, cfg.PoolTypeTag)
	if err != nil {
		return Plan{}, err
	}
	env.PrintDebug()

	return Plan{
		Arena:           arena.Name(),
		ArenaCapacity:   arena.Capacity(),
		Backing:         cfg.Backing().String(),
		TypeTag:         pool.TypeTag(),
		SlotSize:        pool.SlotSize(),
		AlignedSlotSize: pool.AlignedSlotSize(),
		MaxCount:        pool.MaxCount(),
		SlotBytes:       pool.BackingLen(),
		PoolBytes:       arena.Used(),
		Remaining:       arena.Remaining(),
		Usage:           memory.SizeString(arena.Used(), arena.Capacity()),
	}, nil
}

func printPlan(w io.Writer, p Plan) error {
	if jsonOut {
		return printJSON(w, p)
	}
	printInfo(w, "arena      %s (%s, %d bytes)\n", p.Arena, p.Backing, p.ArenaCapacity)
	printInfo(w, "pool       %s x %d\n", p.TypeTag, p.MaxCount)
	printInfo(w, "slot       %d bytes, %d aligned\n", p.SlotSize, p.AlignedSlotSize)
	printInfo(w, "slots      %d bytes\n", p.SlotBytes)
	printInfo(w, "pool total %d bytes\n", p.PoolBytes)
	printInfo(w, "usage      %s\n", p.Usage)
	printInfo(w, "remaining  %d bytes\n", p.Remaining)
	return nil
}
