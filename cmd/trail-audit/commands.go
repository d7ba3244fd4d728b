package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/flybeeper/trail-stats/internal/audit"
	"github.com/flybeeper/trail-stats/internal/elevation"
	"github.com/flybeeper/trail-stats/internal/gpx"
	"github.com/flybeeper/trail-stats/internal/models"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Recompute elevation statistics of stored tracks and reconcile them with stored values",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-tracks",
				Usage: "Process at most N tracks, 0 = all",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Recompute tracks that already have gain and loss",
			},
			&cli.Float64Flag{
				Name:  "min-diff-meters",
				Usage: "Absolute gain/loss difference that triggers an update",
			},
			&cli.Float64Flag{
				Name:  "min-diff-percent",
				Usage: "Relative gain/loss difference in percent that triggers an update",
			},
			&cli.BoolFlag{
				Name:  "update",
				Usage: "Write corrected statistics back to storage",
			},
			&cli.DurationFlag{
				Name:  "batch-delay",
				Usage: "Delay between elevation fetches of consecutive tracks",
			},
			&cli.BoolFlag{
				Name:  "stream-events",
				Usage: "Print every stats update to stderr as a JSON line while the audit runs",
			},
			sourceFlag(),
			tuningFlag(),
			jsonFlag(),
		},
		Action: runAudit,
	}
}

func runAudit(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Флаги переопределяют конфигурацию из окружения
	cfg := rt.cfg.Audit
	if c.IsSet("max-tracks") {
		cfg.MaxTracks = c.Int("max-tracks")
	}
	if c.IsSet("force") {
		cfg.ForceRecalculate = c.Bool("force")
	}
	if c.IsSet("min-diff-meters") {
		cfg.MinDiffMeters = c.Float64("min-diff-meters")
	}
	if c.IsSet("min-diff-percent") {
		cfg.MinDiffPercent = c.Float64("min-diff-percent")
	}
	if c.IsSet("update") {
		cfg.UpdateStorage = c.Bool("update")
	}
	if c.IsSet("batch-delay") {
		cfg.BatchDelay = c.Duration("batch-delay")
	}
	if c.IsSet("tuning") {
		cfg.Tuning = c.String("tuning")
	}

	opts, err := audit.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	store, err := rt.openStore(c.Context)
	if err != nil {
		return err
	}

	resolver, err := rt.resolver(c.String("source"))
	if err != nil {
		return err
	}

	notifier := rt.notifier()
	if c.Bool("stream-events") {
		events, stop := streamEvents(os.Stderr, 64)
		defer stop()
		notifier = audit.MultiNotifier{notifier, events}
	}

	auditor := audit.NewAuditor(store, resolver, rt.engine, notifier, rt.logger)
	summary, err := auditor.Run(c.Context, opts)
	if summary != nil {
		if c.Bool("json") {
			if err := printJSON(os.Stdout, summary); err != nil {
				return err
			}
		} else {
			printSummary(os.Stdout, summary)
		}
	}
	return err
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Parse a GPX file, resolve elevations, compute statistics and store the track",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "gpx-file",
				Aliases:  []string{"g"},
				Usage:    "GPX file to import",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Track name, defaults to the name from the GPX document",
			},
			sourceFlag(),
			tuningFlag(),
			jsonFlag(),
		}, simplifyFlags()...),
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := parseFile(c.String("gpx-file"), gpxOptions(c, rt.cfg.Simplify.ToleranceMeters, rt.cfg.Simplify.MaxPoints))
	if err != nil {
		return err
	}

	tuning, err := rt.tuning(c)
	if err != nil {
		return err
	}

	resolver, err := rt.resolver(c.String("source"))
	if err != nil {
		return err
	}

	store, err := rt.openStore(c.Context)
	if err != nil {
		return err
	}

	// Недоступность высот не мешает сохранению: статистика будет нулевой до аудита
	samples, err := resolver.FetchElevations(c.Context, result.Points)
	if err != nil {
		rt.logger.WithField("error", err).Warn("Elevation unavailable, storing track with zero elevation stats")
	}
	stats := rt.engine.ComputeStats(result.Points, samples, &tuning)

	track := &models.SavedTrack{
		Name:   result.Name,
		Points: result.Points,
	}
	if c.IsSet("name") {
		track.Name = c.String("name")
	}
	track.ApplyStats(stats, rt.now())

	if _, err := store.InsertTrack(c.Context, track); err != nil {
		return err
	}

	rt.logger.WithFields(logrus.Fields{
		"track_id": track.ID,
		"points":   len(track.Points),
		"gain":     stats.ElevationGain,
		"loss":     stats.ElevationLoss,
	}).Info("Track imported")

	if c.Bool("json") {
		return printJSON(os.Stdout, track)
	}
	printTrack(os.Stdout, track, result)
	return nil
}

func compareSourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare-sources",
		Usage: "Compute statistics of one track with every configured elevation source",
		Flags: append(append(trackInputFlags(), tuningFlag(), jsonFlag()), simplifyFlags()...),
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			points, err := rt.loadPoints(c)
			if err != nil {
				return err
			}
			tuning, err := rt.tuning(c)
			if err != nil {
				return err
			}

			fetchers := make(map[elevation.Source]audit.ElevationFetcher)
			for _, source := range rt.registry.Sources() {
				resolver, err := rt.resolver(source.String())
				if err != nil {
					return err
				}
				fetchers[source] = resolver
			}

			rows := audit.NewDiagnostics(rt.engine, rt.logger).CompareSources(c.Context, points, fetchers, tuning)
			return printDiagnostics(c, rows)
		},
	}
}

func verifyMethodsCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify-methods",
		Usage: "Compute statistics of one track with several filter methods over the same elevations",
		Flags: append(append(trackInputFlags(), sourceFlag(), tuningFlag(), jsonFlag()), simplifyFlags()...),
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			points, err := rt.loadPoints(c)
			if err != nil {
				return err
			}

			resolver, err := rt.resolver(c.String("source"))
			if err != nil {
				return err
			}
			samples, err := resolver.FetchElevations(c.Context, points)
			if err != nil {
				return fmt.Errorf("cannot verify methods without elevations: %w", err)
			}

			tunings := audit.MethodSet()
			if c.IsSet("tuning") {
				tuning, err := rt.tuning(c)
				if err != nil {
					return err
				}
				tunings = append(tunings, tuning)
			}

			rows := audit.NewDiagnostics(rt.engine, rt.logger).VerifyMethods(points, samples, tunings)
			return printDiagnostics(c, rows)
		},
	}
}

func parseGPXCommand() *cli.Command {
	return &cli.Command{
		Name:  "parse-gpx",
		Usage: "Parse and simplify a GPX file without touching elevation suppliers or storage",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "gpx-file",
				Aliases:  []string{"g"},
				Usage:    "GPX file to parse",
				Required: true,
			},
			jsonFlag(),
		}, simplifyFlags()...),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			result, err := parseFile(c.String("gpx-file"), gpxOptions(c, cfg.Simplify.ToleranceMeters, cfg.Simplify.MaxPoints))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(os.Stdout, result)
			}
			printParseResult(os.Stdout, result)
			return nil
		},
	}
}

func parseFile(path string, opts gpx.Options) (*gpx.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s for reading: %w", path, err)
	}
	defer f.Close()

	result, err := gpx.ParseReader(f, opts)
	if err != nil {
		return nil, fmt.Errorf("error reading GPX track %s: %w", path, err)
	}
	return result, nil
}

func gpxOptions(c *cli.Context, tolerance float64, maxPoints int) gpx.Options {
	if c.IsSet("tolerance") {
		tolerance = c.Float64("tolerance")
	}
	if c.IsSet("max-points") {
		maxPoints = c.Int("max-points")
	}
	simplify := !c.Bool("no-simplify")

	return gpx.Options{
		Simplify:            &simplify,
		ToleranceMeters:     tolerance,
		MaxPoints:           maxPoints,
		ValidateCoordinates: !c.Bool("no-validate"),
	}
}
