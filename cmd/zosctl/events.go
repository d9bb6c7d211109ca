package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/zeroos/zeroos/core/commit"
)

// eventsCommand dumps the CommitLog's full chain, one line per commit, in
// the teacher's `ctr events` spirit: a flat chronological feed rather than
// a process-grouped view.
var eventsCommand = &cli.Command{
	Name:  "events",
	Usage: "print every commit in the CommitLog",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "since",
			Usage: "only print commits with seq >= since",
		},
	},
	Action: func(cliCtx *cli.Context) error {
		path := cliCtx.String("commit-log")
		log, err := commit.Open(path)
		if err != nil {
			return fmt.Errorf("zosctl: open commit log: %w", err)
		}
		defer log.Close()

		since := cliCtx.Uint64("since")
		return log.All(func(e commit.Entry) error {
			if uint64(e.Seq) < since {
				return nil
			}
			fmt.Printf("%d\t%d\t%s\n", e.Seq, e.PayloadTs, e.Commit.Kind)
			return nil
		})
	},
}
