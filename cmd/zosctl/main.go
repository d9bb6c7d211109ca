// Command zosctl is the Zero OS debug/administrative client, modeled on
// the teacher's cmd/ctr: a urfave/cli/v2 app reading the same CommitLog
// zosd writes, since Zero OS has no separate control-plane RPC — the
// CommitLog and SysLog are the system's own introspection surface.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zeroos/zeroos/cmd/zosd/config"
)

func main() {
	app := &cli.App{
		Name:  "zosctl",
		Usage: "inspect and administer a Zero OS instance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "commit-log",
				Usage: "path to the bbolt CommitLog file",
				Value: "/var/lib/zeroos/commit.db",
			},
		},
		Commands: []*cli.Command{
			psCommand,
			eventsCommand,
			configCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Information on the zosd config",
	Subcommands: []*cli.Command{
		{
			Name:  "default",
			Usage: "print the default zosd configuration",
			Action: func(cliCtx *cli.Context) error {
				return config.Default().WriteTo(os.Stdout)
			},
		},
	},
}
