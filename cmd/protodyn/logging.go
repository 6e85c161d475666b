package main

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
)

const defaultLogLevel = "warn"

// newLogger returns the root logger of the command, which writes to w.
func newLogger(level string, w io.Writer) (hclog.Logger, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, error or off", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "protodyn",
		Level:  lvl,
		Output: w,
	}), nil
}
