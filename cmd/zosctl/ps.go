package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/zeroos/zeroos/core/commit"
)

var psCommand = &cli.Command{
	Name:  "ps",
	Usage: "list processes by replaying the CommitLog's process lifecycle commits",
	Action: func(cliCtx *cli.Context) error {
		path := cliCtx.String("commit-log")
		log, err := commit.Open(path)
		if err != nil {
			return fmt.Errorf("zosctl: open commit log: %w", err)
		}
		defer log.Close()

		type row struct {
			name   string
			zombie bool
		}
		procs := map[uint64]*row{}

		err = log.All(func(e commit.Entry) error {
			switch e.Commit.Kind {
			case commit.KindProcessCreated:
				pc := e.Commit.ProcessCreated
				procs[uint64(pc.Pid)] = &row{name: pc.Name}
			case commit.KindProcessTerminated:
				pt := e.Commit.ProcessTerminated
				if r, ok := procs[uint64(pt.Pid)]; ok {
					r.zombie = true
				}
			case commit.KindProcessReaped:
				pr := e.Commit.ProcessReaped
				delete(procs, uint64(pr.Pid))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("zosctl: replay commit log: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tNAME\tSTATE")
		for pid, r := range procs {
			state := "Running"
			if r.zombie {
				state = "Zombie"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", pid, r.name, state)
		}
		return tw.Flush()
	},
}
