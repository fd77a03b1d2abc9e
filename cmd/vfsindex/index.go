package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs/localfs"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Walk a directory into the index and commit it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "root",
				Aliases:  []string{"r"},
				Usage:    "Directory to index",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Print walk statistics as JSON",
			},
		},
		Action: runIndex,
	}
}

func runIndex(c *cli.Context) error {
	cfg := configFrom(c)
	fs, err := localfs.New(c.String("root"))
	if err != nil {
		return err
	}
	s, cleanup, err := newSearcher(c.Context, cfg, searcherDeps{})
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	stats, walkErr := s.Init(fs)
	if err := s.Commit(); err != nil && walkErr == nil {
		walkErr = err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return err
		}
	} else {
		fmt.Printf("indexed %d files in %d folders (%d with content, %d metadata only, %d denied) in %s\n",
			stats.Files, stats.Folders, stats.WithContent, stats.MetadataOnly, stats.Denied, stats.Duration)
	}
	return walkErr
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:    "search",
		Aliases: []string{"s"},
		Usage:   "Query a persisted index",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Path prefix"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "File name pattern (* and ?)"},
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Free-text query over content"},
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	expr := executor.Expression{
		Path: c.String("path"),
		Name: c.String("name"),
		Text: c.String("text"),
	}
	if expr.IsEmpty() {
		return errors.New("usage: vfsindex search [--path P] [--name N] [--text T]")
	}
	cfg := configFrom(c)
	s, cleanup, err := newSearcher(c.Context, cfg, searcherDeps{})
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()
	if err := s.Open(); err != nil {
		return err
	}

	res, err := s.Search(c.Context, expr)
	var tooLarge *apperrors.ResultSetTooLargeError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w; narrow the query", err)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	if len(res.Paths) > 0 {
		fmt.Println(strings.Join(res.Paths, "\n"))
	}
	fmt.Fprintf(os.Stderr, "%d matches\n", res.TotalHits)
	return nil
}
