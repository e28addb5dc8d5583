package main

import (
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/pitwall-bot/pitwall/internal/timing"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:  "pitwall",
		Usage: "live timing and head-to-head comparisons from the OpenF1 API",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to YAML configuration file",
			EnvVars: []string{"PITWALL_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "override log.level from the configuration",
			EnvVars: []string{"PITWALL_LOG_LEVEL"},
		},
	}

	sessionFlags := []cli.Flag{
		&cli.IntFlag{
			Name:     "year",
			Aliases:  []string{"y"},
			Usage:    "championship year",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "location",
			Aliases:  []string{"l"},
			Usage:    "event location, e.g. Suzuka",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "session",
			Usage: "session name",
			Value: timing.DefaultSessionName,
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the snapshot as JSON",
		},
	}

	app.Commands = []*cli.Command{
		&cli.Command{
			Name:   "serve",
			Usage:  "run the HTTP front-end and the event refresher",
			Action: runServe,
		},
		&cli.Command{
			Name:   "live-timing",
			Usage:  "print the leaderboard of a session",
			Action: runLiveTiming,
			Flags: append([]cli.Flag{
				&cli.StringSliceFlag{
					Name:  "extras",
					Usage: "extra columns: intervals, pit_stops, tyres",
				},
			}, sessionFlags...),
		},
		&cli.Command{
			Name:   "head2head",
			Usage:  "compare the recent laps of two drivers",
			Action: runHead2Head,
			Flags: append([]cli.Flag{
				&cli.IntFlag{
					Name:     "driver1",
					Usage:    "first driver number",
					Required: true,
				},
				&cli.IntFlag{
					Name:     "driver2",
					Usage:    "second driver number",
					Required: true,
				},
				&cli.IntFlag{
					Name:  "laps",
					Usage: "number of most recent laps to compare",
					Value: 3,
				},
			}, sessionFlags...),
		},
		&cli.Command{
			Name:   "events",
			Usage:  "list the grand prix events of a year",
			Action: runEvents,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "year",
					Usage: "championship year",
					Value: time.Now().Year(),
				},
			},
		},
		&cli.Command{
			Name:   "refresh",
			Usage:  "upsert the grand prix events of a year into the store",
			Action: runRefresh,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "year",
					Usage: "championship year",
					Value: time.Now().Year(),
				},
			},
		},
		&cli.Command{
			Name:   "config",
			Usage:  "print the effective configuration",
			Action: runConfig,
		},
	}

	return app.Run(args)
}
