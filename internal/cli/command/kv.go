package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	redis "github.com/eyadof/Net-Async-Redis"
)

// GetCommand fetches one key.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "fetch a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: get KEY", 2)
			}
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				r, err := conn.Get(ctx, c.Args().First())
				if err != nil {
					return err
				}
				if r.IsNil() {
					fmt.Fprintln(c.App.Writer, "(nil)")
					return nil
				}
				s, err := r.AsString()
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, s)
				return nil
			})
		},
	}
}

// SetCommand stores one key.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "store a key",
		ArgsUsage: "KEY VALUE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: set KEY VALUE", 2)
			}
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				if err := conn.Set(ctx, c.Args().Get(0), c.Args().Get(1)); err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, "OK")
				return nil
			})
		},
	}
}

// DelCommand removes keys.
func DelCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "delete keys",
		ArgsUsage: "KEY...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("usage: del KEY...", 2)
			}
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				n, err := conn.Del(ctx, c.Args().Slice()...)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "(integer) %d\n", n)
				return nil
			})
		},
	}
}

// KeysCommand lists keys matching a pattern (default "*").
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Usage:     "list keys matching a pattern",
		ArgsUsage: "[PATTERN]",
		Action: func(c *cli.Context) error {
			return withConnection(c, func(ctx context.Context, conn *redis.Connection) error {
				keys, err := conn.Keys(ctx, c.Args().First())
				if err != nil {
					return err
				}
				for i, k := range keys {
					fmt.Fprintf(c.App.Writer, "%d) %s\n", i+1, k)
				}
				return nil
			})
		},
	}
}
