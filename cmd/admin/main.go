package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "netaction.dev/internal/persistence/log"
	"netaction.dev/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "logs":
			logsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func logsCmd(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	since := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	until := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	limit := fs.Int("limit", 0, "max entries to print (0 = all)")
	summary := fs.Bool("summary", false, "print totals instead of entries")
	_ = fs.Parse(args)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	var sum logSummary
	printed := 0
	err := persistlog.ReadTicks(worldDir, *since, *until, func(e world.TickLogEntry) bool {
		if *summary {
			sum.add(e)
			return true
		}
		printJSON(e)
		printed++
		return *limit <= 0 || printed < *limit
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read tick log:", err)
		os.Exit(1)
	}
	if *summary {
		printJSON(sum)
	}
}

// logSummary folds tick log entries into totals.
type logSummary struct {
	Entries    int     `json:"entries"`
	FirstTick  uint64  `json:"first_tick"`
	LastTick   uint64  `json:"last_tick"`
	Joins      int     `json:"joins"`
	Leaves     int     `json:"leaves"`
	Played     int     `json:"played"`
	Rejected   int     `json:"rejected"`
	Charges    int     `json:"charges"`
	Activities int     `json:"activities"`
	Deaths     int     `json:"deaths"`
	MaxActors  int     `json:"max_actors"`
	MaxStepMS  float64 `json:"max_step_ms"`
}

func (s *logSummary) add(e world.TickLogEntry) {
	if s.Entries == 0 || e.Tick < s.FirstTick {
		s.FirstTick = e.Tick
	}
	if e.Tick > s.LastTick {
		s.LastTick = e.Tick
	}
	s.Entries++
	s.Joins += e.Joins
	s.Leaves += e.Leaves
	s.Played += e.Played
	s.Rejected += e.Rejected
	s.Charges += e.Charges
	s.Activities += e.Activities
	s.Deaths += e.Deaths
	if e.Actors > s.MaxActors {
		s.MaxActors = e.Actors
	}
	if e.StepMS > s.MaxStepMS {
		s.MaxStepMS = e.StepMS
	}
}
