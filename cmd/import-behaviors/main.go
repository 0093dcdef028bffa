// Package main loads a directory of behavior YAML files and upserts each rule set into
// PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
	"github.com/cory-johannsen/huntbot/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	sourceDir := flag.String("source", "", "directory of behavior YAML files (default: engine.behaviors_dir)")
	dryRun := flag.Bool("dry-run", false, "validate files without writing to the database")
	strict := flag.Bool("strict", false, "abort without writing if any file is invalid")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}
	dir := *sourceDir
	if dir == "" {
		dir = cfg.Engine.BehaviorsDir
	}

	start := time.Now()
	configs, loadErr := behavior.LoadDir(dir)
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", loadErr)
		if *strict || len(configs) == 0 {
			os.Exit(1)
		}
	}
	if *dryRun {
		for _, c := range configs {
			fmt.Printf("ok  %-24s attack=%-5v abilities=%d items=%d\n", c.Name, c.AttackEnabled, len(c.Abilities), len(c.Items))
		}
		fmt.Printf("validated %d behaviors in %s\n", len(configs), time.Since(start).Round(time.Millisecond))
		return
	}

	cfg.Database.Enabled = true
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewBehaviorRepository(pool.DB())
	for _, c := range configs {
		if err := repo.Save(ctx, c); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("saved %s\n", c.Name)
	}
	fmt.Printf("import of %d behaviors complete in %s\n", len(configs), time.Since(start).Round(time.Millisecond))
}
