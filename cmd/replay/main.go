package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rxtech-lab/argo-replay/internal/logger"
	engine "github.com/rxtech-lab/argo-replay/internal/replay/engine_v1"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/histcache"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/marketdata/provider"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// runAction loads the yaml config, brings the cache to full coverage and
// replays the configured range, writing results next to the config.
func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	resultsFolder := cmd.String("results")

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	e := engine.NewReplayEngineV1()
	if err := e.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize replay engine: %w", err)
	}

	defer e.Cleanup()

	if err := e.SetResultsFolder(resultsFolder); err != nil {
		return err
	}

	bar := progressbar.Default(100, "preloading cache")

	err = e.Preload(ctx, func(current float64, total float64, message string) {
		if total > 0 {
			_ = bar.Set(int(current / total * 100))
		}

		bar.Describe(message)
	})
	if err != nil {
		return fmt.Errorf("preload failed: %w", err)
	}

	_ = bar.Finish()

	started := time.Now()

	if err := e.Run(ctx, nil); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	stats, err := e.WriteResults()
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	log.Printf("Replay finished in %s", time.Since(started).Round(time.Millisecond))

	for _, s := range stats {
		log.Printf("%s: %d trades, win rate %.1f%%, total profit %.2f, final balance %.2f",
			s.Symbol, s.Summary.NumberOfTrades, s.Summary.WinRate*100, s.Summary.TotalProfit, s.FinalBalance)
	}

	return nil
}

// schemaAction prints the JSON schema for the replay config, for editor
// completion and CI validation of config files.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	var config engine.ReplayEngineV1Config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

// providersAction lists the supported market data providers.
func providersAction(ctx context.Context, cmd *cli.Command) error {
	for _, name := range provider.SupportedProviders() {
		info, err := provider.GetProviderInfo(name)
		if err != nil {
			return err
		}

		auth := "no API key required"
		if info.RequiresAuth {
			auth = "API key required"
		}

		fmt.Printf("%-10s %s (%s)\n", info.Name, info.Description, auth)
	}

	return nil
}

func openCache(cmd *cli.Command) (*histcache.Cache, error) {
	l, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	return histcache.NewCache(cmd.String("cache"), 7*24*time.Hour, l)
}

// cacheListAction prints every indexed series with its cached day span.
func cacheListAction(ctx context.Context, cmd *cli.Command) error {
	cache, err := openCache(cmd)
	if err != nil {
		return err
	}

	entries := cache.Index().Entries()
	if len(entries) == 0 {
		fmt.Println("cache is empty")

		return nil
	}

	fmt.Printf("%-12s %-8s %6s  %s\n", "SYMBOL", "SERIES", "DAYS", "RANGE")

	for _, e := range entries {
		fmt.Printf("%-12s %-8s %6d  %s..%s\n", e.Symbol, e.SeriesKey, e.Days, e.First, e.Last)
	}

	return nil
}

// cacheClearAction invalidates cached data: everything, one symbol, one day
// across all symbols, or one symbol's single day.
func cacheClearAction(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.String("symbol")
	day := cmd.String("day")

	var parsed types.Day

	if day != "" {
		d, err := types.ParseDay(day)
		if err != nil {
			return err
		}

		parsed = d
	}

	cache, err := openCache(cmd)
	if err != nil {
		return err
	}

	if err := cache.Clear(symbol, parsed); err != nil {
		return err
	}

	fmt.Println("cache cleared")

	return nil
}

// cacheRebuildAction re-scans the on-disk layout and rewrites the manifest.
func cacheRebuildAction(ctx context.Context, cmd *cli.Command) error {
	cache, err := openCache(cmd)
	if err != nil {
		return err
	}

	if err := cache.Index().Rebuild(); err != nil {
		return err
	}

	fmt.Printf("index rebuilt: %d series\n", len(cache.Index().Entries()))

	return nil
}

func main() {
	cacheFlag := &cli.StringFlag{
		Name:    "cache",
		Aliases: []string{"c"},
		Usage:   "Path to the cache root directory",
		Value:   "data/cache",
	}

	cmd := &cli.Command{
		Name:  "replay",
		Usage: "Replay cached historical market data through a simulated venue",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a replay from a yaml config",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"f"},
						Usage:    "Path to the replay config yaml",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "results",
						Aliases: []string{"o"},
						Usage:   "Directory replay results are written to",
						Value:   "results",
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema for the replay config",
				Action: schemaAction,
			},
			{
				Name:   "providers",
				Usage:  "List supported market data providers",
				Action: providersAction,
			},
			{
				Name:  "cache",
				Usage: "Inspect and maintain the historical data cache",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List cached series and their day coverage",
						Flags:  []cli.Flag{cacheFlag},
						Action: cacheListAction,
					},
					{
						Name:  "clear",
						Usage: "Invalidate cached data",
						Flags: []cli.Flag{
							cacheFlag,
							&cli.StringFlag{
								Name:    "symbol",
								Aliases: []string{"s"},
								Usage:   "Clear only this symbol",
							},
							&cli.StringFlag{
								Name:    "day",
								Aliases: []string{"d"},
								Usage:   "Clear only this `YYYY-MM-DD` day",
							},
						},
						Action: cacheClearAction,
					},
					{
						Name:   "rebuild",
						Usage:  "Re-scan the cache directory and rewrite the index manifest",
						Flags:  []cli.Flag{cacheFlag},
						Action: cacheRebuildAction,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
