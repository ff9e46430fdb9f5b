// Package channeld implements the `flowmesh channel` service command.
package channeld

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/urfave/cli/v2"

	"github.com/flowmesh/flowmesh/channel"
	logutil "github.com/flowmesh/flowmesh/internal/util/log"
	statsdutil "github.com/flowmesh/flowmesh/internal/util/statsd"
	"github.com/flowmesh/flowmesh/vat"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "channel",
		Usage: "host buffered channels and hand out their sturdy refs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "no_of_channels",
				Aliases: []string{"#"},
				Usage:   "`number` of channels to create",
				Value:   1,
			},
			&cli.IntFlag{
				Name:    "buffer_size",
				Aliases: []string{"b"},
				Usage:   "buffer `size` of each channel",
				Value:   1,
			},
			&cli.IntFlag{
				Name:        "create",
				Aliases:     []string{"c"},
				Usage:       "`number` of readers and writers per channel (1..255); -R and -W override a side",
				DefaultText: "disabled",
			},
			&cli.IntFlag{
				Name:    "no_of_readers",
				Aliases: []string{"R"},
				Usage:   "`number` of readers per channel",
				Value:   1,
			},
			&cli.IntFlag{
				Name:    "no_of_writers",
				Aliases: []string{"W"},
				Usage:   "`number` of writers per channel",
				Value:   1,
			},
			&cli.StringFlag{
				Name:    "reader_srts",
				Aliases: []string{"r"},
				Usage:   "reader sturdy-ref `tokens`, comma-separated per channel, channels separated by + (a,b+c,d)",
			},
			&cli.StringFlag{
				Name:    "writer_srts",
				Aliases: []string{"w"},
				Usage:   "writer sturdy-ref `tokens`, comma-separated per channel, channels separated by + (a,b+c,d)",
			},
			&cli.IntFlag{
				Name:    "exit_timeout",
				Aliases: []string{"t"},
				Usage:   "`seconds` between sweeps for closed channels",
				Value:   3,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "service `name`",
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "service `description`",
			},
			&cli.BoolFlag{
				Name:  "output_srs",
				Usage: "print sturdy-ref URLs to stdout",
			},
		},
		Action: serve(),
	}
}

func serve() cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context,
			syscall.SIGINT,
			syscall.SIGTERM)
		defer cancel()

		logger := logutil.New(c).
			WithField("service", c.String("name"))
		metrics := statsdutil.New(c, logger)

		nChans := c.Int("no_of_channels")
		nReaders := c.Int("no_of_readers")
		nWriters := c.Int("no_of_writers")

		if c.IsSet("create") {
			n := c.Int("create")
			if n < 1 || n > 255 {
				return fmt.Errorf("create: %d not in 1..255", n)
			}

			if !c.IsSet("no_of_readers") {
				nReaders = n
			}

			if !c.IsSet("no_of_writers") {
				nWriters = n
			}
		}

		if nChans < 1 {
			nChans = 1
		}

		svc := &channel.Service{
			Log:         logger,
			Metrics:     metrics.WithPrefix("channel"),
			Restorer:    vat.NewTable("localhost"),
			ExitTimeout: exitTimeout(c),
		}

		readerTokens := tokens(c.String("reader_srts"), nChans, nReaders)
		writerTokens := tokens(c.String("writer_srts"), nChans, nWriters)

		for i := 0; i < nChans; i++ {
			ch := channel.New(
				channel.WithName(c.String("name")),
				channel.WithDescription(c.String("description")),
				channel.WithBufferSize(c.Int("buffer_size")),
				channel.WithLogger(logger),
				channel.WithMetrics(metrics.WithPrefix("channel")),
				channel.WithRestorer(svc.Restorer))

			snap, err := svc.Register(ctx, ch, readerTokens[i], writerTokens[i])
			if err != nil {
				return fmt.Errorf("register channel: %w", err)
			}

			if c.Bool("output_srs") {
				svc.WriteRefs(c.App.Writer, snap)
			}
		}

		app := suture.New(c.App.Name, suture.Spec{
			EventHook: logutil.NewEventHook(logger, "channel"),
		})
		app.Add(svc)

		err := app.Serve(ctx)
		if errors.Is(err, suture.ErrTerminateSupervisorTree) || errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}
}

func exitTimeout(c *cli.Context) time.Duration {
	secs := c.Int("exit_timeout")
	if secs < 1 {
		secs = 1
	}

	return time.Duration(secs) * time.Second
}

// tokens expands the `T1,T2+T1,T2` flag shape into one token list per
// channel: `+` separates channels, `,` separates the tokens within
// one channel.  Missing tokens stay empty and are later replaced with
// random ones.
func tokens(flag string, channels, n int) [][]string {
	groups := strings.Split(flag, "+")

	out := make([][]string, channels)
	for i := range out {
		var group []string
		if i < len(groups) && groups[i] != "" {
			group = strings.Split(groups[i], ",")
		}

		for len(group) < n {
			group = append(group, "")
		}

		out[i] = group[:n]
	}

	return out
}
