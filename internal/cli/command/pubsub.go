package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	redis "github.com/eyadof/Net-Async-Redis"
	"github.com/eyadof/Net-Async-Redis/internal/infra/shutdown"
)

// PublishCommand sends one message.
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "publish a message to a channel",
		ArgsUsage: "CHANNEL MESSAGE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: publish CHANNEL MESSAGE", 2)
			}
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				n, err := conn.Publish(ctx, c.Args().Get(0), c.Args().Get(1))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "(integer) %d\n", n)
				return nil
			})
		},
	}
}

// SubscribeCommand streams messages until interrupted.
func SubscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "subscribe to channels and print messages",
		ArgsUsage: "CHANNEL...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "pattern",
				Aliases: []string{"p"},
				Usage:   "treat arguments as patterns (PSUBSCRIBE)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("usage: subscribe CHANNEL...", 2)
			}
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				ctx, cancel := shutdown.WithSignals(ctx)
				defer cancel()

				var (
					subs []*redis.Subscription
					err  error
				)
				if c.Bool("pattern") {
					subs, err = conn.PSubscribe(ctx, c.Args().Slice()...)
				} else {
					subs, err = conn.Subscribe(ctx, c.Args().Slice()...)
				}
				if err != nil {
					return err
				}

				merged := make(chan redis.Message)
				for _, sub := range subs {
					sub := sub
					go func() {
						for msg := range sub.Messages() {
							select {
							case merged <- msg:
							case <-ctx.Done():
								return
							}
						}
					}()
				}

				for {
					select {
					case msg := <-merged:
						fmt.Fprintf(c.App.Writer, "%s %s %s\n", msg.Type, msg.Channel, msg.Payload)
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}
}
