package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"media-reaper/internal/auth"
	"media-reaper/internal/config"
	"media-reaper/internal/database"
	"media-reaper/internal/deletion"
	"media-reaper/internal/exitcodes"
	"media-reaper/internal/fileinfo"
	"media-reaper/internal/fsops"
	"media-reaper/internal/logging"
	"media-reaper/internal/mediaindex"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitcodes.InvalidConfig)
	}
	return cfg, nil
}

func newLogger(c *cli.Context) *logrus.Entry {
	if !c.Bool("verbose") {
		return logging.NewDiscard()
	}
	log := logrus.New()
	log.Out = c.App.ErrWriter
	log.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(log)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deleteAction(c *cli.Context) error {
	paths := lo.Map(c.Args().Slice(), func(p string, _ int) string {
		return fsops.NormalizePath(p)
	})
	if len(paths) == 0 {
		return cli.Exit("delete needs at least one PATH", exitcodes.InvalidConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c)

	index, err := mediaindex.Open(cfg.DatabasePath)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	defer index.Close()

	svc := deletion.NewFromConfig(cfg, index, log)
	if !c.Bool("no-history") {
		history, err := database.NewDeletionDB(cfg.DatabasePath)
		if err != nil {
			return cli.Exit(err.Error(), exitcodes.RuntimeError)
		}
		defer history.Close()
		svc.AddObserver(deletion.NewHistoryObserver(history, log))
	}

	results := lo.Map(paths, func(p string, _ int) deletion.Result {
		return svc.DeleteDetailed(c.Context, p)
	})

	if c.Bool("json") {
		out := lo.Map(results, func(r deletion.Result, _ int) map[string]interface{} {
			return map[string]interface{}{"path": r.Path, "result": r.Deleted, "strategy": r.Strategy}
		})
		if err := printJSON(c.App.Writer, out); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Deleted {
				fmt.Fprintf(c.App.Writer, "%s %s (%s)\n", green("deleted"), r.Path, r.Strategy)
				continue
			}
			reasons := lo.Map(r.Outcomes, func(o deletion.Outcome, _ int) string {
				return o.Strategy + "=" + o.Summary()
			})
			fmt.Fprintf(c.App.Writer, "%s  %s [%s]\n", red("failed"), r.Path, strings.Join(reasons, "; "))
		}
	}

	failed := lo.CountBy(results, func(r deletion.Result) bool { return !r.Deleted })
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d paths not deleted", failed, len(results)), exitcodes.Failure)
	}
	return nil
}

func infoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("info needs exactly one PATH", exitcodes.InvalidConfig)
	}

	info, err := fileinfo.Stat(fsops.NormalizePath(c.Args().First()))
	if err != nil {
		var fe *fileinfo.Error
		if errors.As(err, &fe) {
			return cli.Exit(fe.Error(), exitcodes.RuntimeError)
		}
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}

	if c.Bool("json") || !info.Exists {
		return printJSON(c.App.Writer, info)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s\n", info.Path)
	fmt.Fprintf(tw, "Size:\t%d\n", info.Size)
	fmt.Fprintf(tw, "Last modified:\t%d\n", info.LastModified)
	fmt.Fprintf(tw, "Permissions:\t%s\n", permString(info))
	return tw.Flush()
}

func permString(info fileinfo.FileInfo) string {
	flag := func(ok bool, ch string) string {
		if ok {
			return ch
		}
		return "-"
	}
	return flag(info.CanRead, "r") + flag(info.CanWrite, "w") + flag(info.CanExecute, "x")
}

func openIndex(c *cli.Context) (*config.Config, *mediaindex.Index, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	index, err := mediaindex.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	return cfg, index, nil
}

func indexScanAction(c *cli.Context) error {
	cfg, index, err := openIndex(c)
	if err != nil {
		return err
	}
	defer index.Close()

	roots := c.Args().Slice()
	if len(roots) == 0 {
		roots = cfg.Index.Roots
	}
	if len(roots) == 0 {
		return cli.Exit("no roots given and index.roots is empty", exitcodes.InvalidConfig)
	}

	scanner := mediaindex.NewScanner(index, newLogger(c), cfg.Index.Extensions, cfg.Index.MaxFilesPerSecond)
	results, err := scanner.ScanRoots(c.Context, roots)

	for _, root := range roots {
		stats := results[root]
		fmt.Fprintf(c.App.Writer, "%s indexed=%d skipped=%d errors=%d\n", root, stats.Indexed, stats.Skipped, stats.Errors)
	}
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	return nil
}

func indexPruneAction(c *cli.Context) error {
	_, index, err := openIndex(c)
	if err != nil {
		return err
	}
	defer index.Close()

	pruned, err := index.Prune(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	fmt.Fprintf(c.App.Writer, "pruned %d stale entries\n", pruned)
	return nil
}

func indexListAction(c *cli.Context) error {
	_, index, err := openIndex(c)
	if err != nil {
		return err
	}
	defer index.Close()

	entries, err := index.List(c.Context, c.Int("limit"))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	if c.Bool("json") {
		return printJSON(c.App.Writer, entries)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tTYPE\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.ID, e.Size, e.MimeType, e.Data)
	}
	return tw.Flush()
}

func openHistory(c *cli.Context) (*database.DeletionDB, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDeletionDB(cfg.DatabasePath)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	return db, nil
}

func historyRecentAction(c *cli.Context) error {
	db, err := openHistory(c)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := c.Int("limit")
	var records []database.DeletionRecord
	switch {
	case c.String("result") != "":
		records, err = db.GetDeletionsByResult(strings.ToUpper(c.String("result")), limit)
	case c.String("strategy") != "":
		records, err = db.GetDeletionsByStrategy(c.String("strategy"), limit)
	case c.String("path") != "":
		records, err = db.GetDeletionsByPath(c.String("path"), limit)
	default:
		records, err = db.GetRecentDeletions(limit)
	}
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}

	if c.Bool("json") {
		return printJSON(c.App.Writer, records)
	}
	printRecords(c.App.Writer, records)
	return nil
}

func printRecords(w io.Writer, records []database.DeletionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tRESULT\tSTRATEGY\tPATH\tATTEMPTS")
	for _, r := range records {
		result := green(r.Result)
		if r.Result != database.ResultDeleted {
			result = red(r.Result)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			result,
			lo.Ternary(r.Strategy == "", "-", r.Strategy),
			r.Path,
			r.Attempts,
		)
	}
	tw.Flush()
}

func historyStatsAction(c *cli.Context) error {
	db, err := openHistory(c)
	if err != nil {
		return err
	}
	defer db.Close()

	days := c.Int("days")
	stats, err := db.GetDeletionStats(days)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}
	if c.Bool("json") {
		return printJSON(c.App.Writer, stats)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Deletion requests (last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Total requests:  %d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Deleted:         %s\n", green(stats.TotalDeleted))
	fmt.Fprintf(w, "Failed:          %s\n", red(stats.TotalFailed))

	if len(stats.ByStrategy) > 0 {
		fmt.Fprintln(w, "\nBy strategy:")
		names := lo.Keys(stats.ByStrategy)
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-15s %d\n", name, stats.ByStrategy[name])
		}
	}
	return nil
}

func tokenAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	manager, err := auth.NewJWTManager(cfg.API.JWTSecret, cfg.JWTExpiry())
	if err != nil {
		return cli.Exit("api.jwt_secret must be set to mint tokens", exitcodes.InvalidConfig)
	}

	roles := c.StringSlice("role")
	for _, r := range roles {
		if _, ok := auth.RolePermissions[r]; !ok {
			return cli.Exit(fmt.Sprintf("unknown role %q", r), exitcodes.InvalidConfig)
		}
	}

	token, expires, err := manager.GenerateToken(c.String("subject"), roles)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeError)
	}

	if c.Bool("json") {
		return printJSON(c.App.Writer, map[string]interface{}{"token": token, "expires_at": expires})
	}
	fmt.Fprintln(c.App.Writer, token)
	fmt.Fprintln(c.App.ErrWriter, yellow("expires "+expires.Format("2006-01-02 15:04:05 MST")))
	return nil
}
