// Package logutil builds the process-wide flowmesh logger from a cli
// context.
package logutil

import (
	"io"
	"os"

	"github.com/lthibault/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/flowmesh/flowmesh"
)

// key with random component to avoid collision
const key = "flowmesh.util.log:u%4QZ]k?fM&+Hq0(R~1x#sW"

// New returns the app's logger, building and caching it on first use.
// The logger carries the flowmesh version, so mixed deployments can be
// told apart in aggregated streams.
func New(c *cli.Context) log.Logger {
	if cached, ok := c.App.Metadata[key].(log.Logger); ok {
		return cached
	}

	logger := log.New(
		log.WithLevel(level(c)),
		log.WithFormatter(formatter(c)),
		log.WithWriter(writer(c))).
		WithField("version", flowmesh.Version)

	c.App.Metadata[key] = logger

	return logger
}

var levels = map[string]log.Level{
	"trace": log.TraceLevel, "t": log.TraceLevel,
	"debug": log.DebugLevel, "d": log.DebugLevel,
	"info": log.InfoLevel, "i": log.InfoLevel,
	"warn": log.WarnLevel, "warning": log.WarnLevel, "w": log.WarnLevel,
	"error": log.ErrorLevel, "err": log.ErrorLevel, "e": log.ErrorLevel,
	"fatal": log.FatalLevel, "f": log.FatalLevel,
}

// level maps the --loglvl flag onto a log level.  `--logfmt none`
// silences everything short of fatal.
func level(c *cli.Context) log.Level {
	if c.String("logfmt") == "none" {
		return log.FatalLevel
	}

	if lvl, ok := levels[c.String("loglvl")]; ok {
		return lvl
	}

	return log.InfoLevel
}

func formatter(c *cli.Context) logrus.Formatter {
	if c.String("logfmt") == "json" {
		return &logrus.JSONFormatter{PrettyPrint: c.Bool("prettyprint")}
	}

	return new(logrus.TextFormatter)
}

func writer(c *cli.Context) io.Writer {
	if w := c.App.ErrWriter; w != nil {
		return w
	}

	return os.Stderr
}
