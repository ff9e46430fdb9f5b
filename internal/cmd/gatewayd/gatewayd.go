// Package gatewayd implements the `flowmesh gateway` service command.
package gatewayd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/urfave/cli/v2"

	"github.com/flowmesh/flowmesh"
	"github.com/flowmesh/flowmesh/gateway"
	logutil "github.com/flowmesh/flowmesh/internal/util/log"
	statsdutil "github.com/flowmesh/flowmesh/internal/util/statsd"
	"github.com/flowmesh/flowmesh/vat"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "keep registered capabilities alive while they heartbeat",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "secs_keep_alive_timeout",
				Aliases: []string{"t"},
				Usage:   "keep-alive `seconds` advertised to clients",
				Value:   600,
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
				Usage: "print the gateway's sturdy-ref URL to stdout",
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

		restorer := vat.NewTable("localhost")

		gw := &gateway.Gateway{
			Info: flowmesh.Info{
				Name:        c.String("name"),
				Description: c.String("description"),
			},
			Log:       logger,
			Metrics:   metrics.WithPrefix("gateway"),
			Restorer:  restorer,
			KeepAlive: keepAlive(c),
		}

		if err := gw.Setup(); err != nil {
			return fmt.Errorf("setup gateway: %w", err)
		}

		ref, _, err := restorer.Save(ctx, gw)
		if err != nil {
			return fmt.Errorf("save gateway: %w", err)
		}

		if c.Bool("output_srs") {
			fmt.Fprintf(c.App.Writer, "gatewaySR=%s\n", restorer.URL(ref))
		}

		app := suture.New(c.App.Name, suture.Spec{
			EventHook: logutil.NewEventHook(logger, "gateway"),
		})
		app.Add(gw)

		err = app.Serve(ctx)
		if errors.Is(err, suture.ErrTerminateSupervisorTree) || errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}
}

func keepAlive(c *cli.Context) time.Duration {
	secs := c.Int("secs_keep_alive_timeout")
	if secs < 0 {
		secs = 0
	}

	return time.Duration(secs) * time.Second
}
