package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/flybeeper/trail-stats/internal/config"
)

var (
	// Version будет установлен при сборке через ldflags
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "trail-audit",
		Usage:   "Track geometry and elevation statistics: import, audit and diagnostics",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: config.LogLevel(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text or json)",
				Value: config.LogFormat(),
			},
		},
		Commands: []*cli.Command{
			auditCommand(),
			importCommand(),
			compareSourcesCommand(),
			verifyMethodsCommand(),
			parseGPXCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// Флаги, общие для команд, которые загружают высоты

func sourceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "source",
		Aliases: []string{"s"},
		Usage:   "Elevation source: auto, api or terrainrgb (default from ELEVATION_SOURCE)",
	}
}

func tuningFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "tuning",
		Usage: `Filter tuning overrides as JSON, e.g. '{"method":"hysteresis","smoothing_window":7}'`,
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print the result as JSON",
	}
}

func trackInputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "gpx-file",
			Aliases: []string{"g"},
			Usage:   "GPX file to read the track from",
		},
		&cli.Int64Flag{
			Name:  "track-id",
			Usage: "Stored track id to read the points from",
		},
	}
}

func simplifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "tolerance",
			Usage: "Simplification tolerance in meters (default from SIMPLIFY_TOLERANCE_METERS)",
		},
		&cli.IntFlag{
			Name:  "max-points",
			Usage: "Cap on the number of points after simplification, 0 = no cap",
		},
		&cli.BoolFlag{
			Name:  "no-simplify",
			Usage: "Keep every track point",
		},
		&cli.BoolFlag{
			Name:  "no-validate",
			Usage: "Accept track points with out-of-range coordinates",
		},
	}
}
