package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"media-reaper/internal/exitcodes"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.Failure)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "media-reaper-ctl",
		Usage: "operate on the media-reaper index, history and files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "/etc/media-reaper/config.yaml",
				Usage:   "path to config yaml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log every strategy attempt to stderr",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of text",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "delete",
				Usage:     "delete files through the strategy chain",
				ArgsUsage: "PATH...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "do not record the requests in the deletion history",
					},
				},
				Action: deleteAction,
			},
			{
				Name:      "info",
				Usage:     "show metadata for a path",
				ArgsUsage: "PATH",
				Action:    infoAction,
			},
			{
				Name:  "index",
				Usage: "manage the media index",
				Subcommands: []*cli.Command{
					{
						Name:      "scan",
						Usage:     "index media files under the given roots (default: configured roots)",
						ArgsUsage: "[ROOT...]",
						Action:    indexScanAction,
					},
					{
						Name:   "prune",
						Usage:  "drop entries whose files no longer exist",
						Action: indexPruneAction,
					},
					{
						Name:  "list",
						Usage: "list indexed files",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 50},
						},
						Action: indexListAction,
					},
				},
			},
			{
				Name:  "history",
				Usage: "query the deletion history",
				Subcommands: []*cli.Command{
					{
						Name:  "recent",
						Usage: "show the most recent requests",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 20},
							&cli.StringFlag{Name: "result", Usage: "only DELETED or FAILED"},
							&cli.StringFlag{Name: "strategy", Usage: "only requests won by this strategy"},
							&cli.StringFlag{Name: "path", Usage: "SQL LIKE pattern on the path"},
						},
						Action: historyRecentAction,
					},
					{
						Name:  "stats",
						Usage: "summarise requests over a number of days",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "days", Value: 30},
						},
						Action: historyStatsAction,
					},
				},
			},
			{
				Name:  "token",
				Usage: "mint a bearer token for the bridge API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "bridge"},
					&cli.StringSliceFlag{Name: "role", Value: cli.NewStringSlice("bridge")},
				},
				Action: tokenAction,
			},
		},
	}
}
