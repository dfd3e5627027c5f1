package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/store"
)

func runRules(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	dbPath := fs.String("db", "domshift.db", "path to SQLite database")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: domshift rules -db <file> list | get <name> | put <name> <file.yaml> | delete <name>")
	}
	fs.Parse(args)
	newLogger("warn")

	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		os.Exit(2)
	}
	switch rest[0] {
	case "list":
		sets, err := st.ListRuleSets(ctx)
		if err != nil {
			return err
		}
		for _, rs := range sets {
			fmt.Printf("%s\tv%d\t%s\n", rs.Name, rs.Version, time.UnixMilli(rs.UpdatedAt).Format(time.RFC3339))
		}
		return nil
	case "get":
		if len(rest) != 2 {
			break
		}
		rs, err := st.GetRuleSet(ctx, rest[1])
		if err != nil {
			return err
		}
		if rs == nil {
			return fmt.Errorf("rule set %q not found", rest[1])
		}
		fmt.Print(rs.YAML)
		return nil
	case "put":
		if len(rest) != 3 {
			break
		}
		doc, err := os.ReadFile(rest[2])
		if err != nil {
			return err
		}
		rs, err := st.PutRuleSet(ctx, rest[1], doc)
		if err != nil {
			return err
		}
		fmt.Printf("%s\tv%d\n", rs.Name, rs.Version)
		return nil
	case "delete":
		if len(rest) != 2 {
			break
		}
		return st.DeleteRuleSet(ctx, rest[1])
	}
	fs.Usage()
	os.Exit(2)
	return nil
}

func runEvents(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dbPath := fs.String("db", "domshift.db", "path to SQLite database")
	typ := fs.String("type", "", "only this event type")
	rule := fs.String("rule", "", "only events of this rule")
	since := fs.Duration("since", 0, "only events newer than this")
	limit := fs.Int("limit", 100, "max events")
	prune := fs.Duration("prune", 0, "delete events older than this and exit")
	fs.Parse(args)
	newLogger("warn")

	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if *prune > 0 {
		n, err := st.PruneEvents(ctx, time.Now().Add(-*prune))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d events\n", n)
		return nil
	}

	f := store.EventFilter{Type: mover.EventType(*typ), Rule: *rule, Limit: *limit}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}
	events, err := st.ListEvents(ctx, f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
