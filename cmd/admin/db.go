package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.Uint64("actor", 0, "actor_id filter (sessions)")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()
	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "ticks":
		rows, err := db.Query(`SELECT tick,joins,leaves,played,rejected,charges,activities,deaths,actors,blocking,non_blocking,step_ms FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int64   `json:"tick"`
				Joins       int     `json:"joins"`
				Leaves      int     `json:"leaves"`
				Played      int     `json:"played"`
				Rejected    int     `json:"rejected"`
				Charges     int     `json:"charges"`
				Activities  int     `json:"activities"`
				Deaths      int     `json:"deaths"`
				Actors      int     `json:"actors"`
				Blocking    int     `json:"blocking"`
				NonBlocking int     `json:"non_blocking"`
				StepMS      float64 `json:"step_ms"`
			}
			if err := rows.Scan(&r.Tick, &r.Joins, &r.Leaves, &r.Played, &r.Rejected, &r.Charges, &r.Activities, &r.Deaths, &r.Actors, &r.Blocking, &r.NonBlocking, &r.StepMS); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "actions":
		rows, err := db.Query(`SELECT id,name,behavior,duration_seconds,exec_time_seconds,blocking_mode,anticipatable,radius,params_json FROM actions ORDER BY id`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID              int32           `json:"id"`
				Name            string          `json:"name"`
				Behavior        string          `json:"behavior"`
				DurationSeconds float64         `json:"duration_seconds"`
				ExecTimeSeconds float64         `json:"exec_time_seconds"`
				BlockingMode    string          `json:"blocking_mode"`
				Anticipatable   bool            `json:"anticipatable"`
				Radius          float64         `json:"radius"`
				Params          json.RawMessage `json:"params"`
			}
			var params string
			if err := rows.Scan(&r.ID, &r.Name, &r.Behavior, &r.DurationSeconds, &r.ExecTimeSeconds, &r.BlockingMode, &r.Anticipatable, &r.Radius, &params); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Params = json.RawMessage(params)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "sessions":
		query := `SELECT tick,session_id,actor_id,name,kind,at FROM sessions ORDER BY at DESC LIMIT ?`
		qargs := []any{*limit}
		if *actor != 0 {
			query = `SELECT tick,session_id,actor_id,name,kind,at FROM sessions WHERE actor_id=? ORDER BY at DESC LIMIT ?`
			qargs = []any{int64(*actor), *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				SessionID string `json:"session_id"`
				ActorID   int64  `json:"actor_id"`
				Name      string `json:"name"`
				Kind      string `json:"kind"`
				At        string `json:"at"`
			}
			if err := rows.Scan(&r.Tick, &r.SessionID, &r.ActorID, &r.Name, &r.Kind, &r.At); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] ticks|actions|sessions|catalogs")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
