package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	serverFlag := &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "server base URL (defaults to SERVER_URL)",
	}
	idFlag := &cli.StringFlag{
		Name:  "id",
		Usage: "player id; a random one is used when empty",
	}
	nameFlag := &cli.StringFlag{
		Name:    "name",
		Aliases: []string{"n"},
		Usage:   "display name",
		Value:   os.Getenv("USER"),
	}
	logFlag := &cli.BoolFlag{
		Name:  "log",
		Usage: "write logs according to LOG_* variables",
	}
	onlineFlags := []cli.Flag{serverFlag, idFlag, nameFlag, logFlag}

	return &cli.Command{
		Name:  "xiangqi",
		Usage: "Chinese chess: local hot-seat play and online rooms",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the room server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address (overrides HTTP_ADDR)",
					},
				},
				Action: serve,
			},
			{
				Name:  "play",
				Usage: "play both sides in this terminal",
				Flags: []cli.Flag{nameFlag, logFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					env, err := loadConsoleEnv(c)
					if err != nil {
						return err
					}
					return runLocal(ctx, os.Stdin, os.Stdout, env.cat, c.String("name"))
				},
			},
			{
				Name:  "host",
				Usage: "create a room and wait for an opponent",
				Flags: onlineFlags,
				Action: func(ctx context.Context, c *cli.Command) error {
					return online(ctx, c, "")
				},
			},
			{
				Name:      "join",
				Usage:     "join a room by code",
				ArgsUsage: "CODE",
				Flags:     onlineFlags,
				Action: func(ctx context.Context, c *cli.Command) error {
					code := c.Args().First()
					if code == "" {
						return cli.Exit("join needs a room code", 2)
					}
					return online(ctx, c, code)
				},
			},
			{
				Name:  "rooms",
				Usage: "list rooms waiting for an opponent",
				Flags: []cli.Flag{serverFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					env, err := loadConsoleEnv(c)
					if err != nil {
						return err
					}
					return listRooms(ctx, os.Stdout, env.server)
				},
			},
		},
	}
}
