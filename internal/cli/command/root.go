package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	redis "github.com/eyadof/Net-Async-Redis"
	"github.com/eyadof/Net-Async-Redis/internal/infra/buildinfo"
	"github.com/eyadof/Net-Async-Redis/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "naredis",
		Usage:   "example Redis client tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			GetCommand(),
			SetCommand(),
			DelCommand(),
			KeysCommand(),
			PublishCommand(),
			SubscribeCommand(),
		},
		// Errors, cli.Exit usage errors included, are returned from Run
		// instead of exiting the process.
		ExitErrHandler: func(*cli.Context, error) {},
	}
	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "uri",
			Aliases: []string{"u"},
			Usage:   "server locator, redis://[user:pass@]host[:port][/db]",
			EnvVars: []string{"REDIS_URI"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file with client options",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level: debug, info, warn, error",
			Value:   "warn",
			EnvVars: []string{"REDIS_LOG_LEVEL"},
		},
	}
}

// connect builds options from the environment, the optional config file,
// and the global flags, then dials.
func connect(c *cli.Context) (*redis.Connection, error) {
	opts, err := redis.OptionsFromEnv(c.String("config"))
	if err != nil {
		return nil, err
	}
	if uri := c.String("uri"); uri != "" {
		// Clear the default host and port so the URI's parts apply.
		opts.URI = uri
		opts.Host, opts.Port = "", 0
	}

	log, err := logger.New(logger.Config{Level: c.String("log-level"), Format: "text"})
	if err != nil {
		return nil, err
	}
	opts.Logger = log

	return redis.Connect(c.Context, opts)
}

func withConnection(c *cli.Context, fn func(ctx context.Context, conn *redis.Connection) error) error {
	conn, err := connect(c)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(c.Context, conn)
}

// PingCommand checks connectivity.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "check server connectivity",
		Action: func(c *cli.Context) error {
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				if err := conn.Ping(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, "PONG")
				return nil
			})
		},
	}
}
