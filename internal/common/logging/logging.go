// Package logging holds the slog helpers shared across lanls: common
// attribute constructors and a handler that stamps records with the scan ID
// of the invocation they belong to.
package logging

import (
	"log/slog"
	"os"
	"runtime/debug"
)

func NewProgramAttr() slog.Attr {
	buildInfo, _ := debug.ReadBuildInfo()
	hostname, _ := os.Hostname()

	return slog.Group("program",
		slog.Int("pid", os.Getpid()),
		slog.String("machine", hostname),
		slog.String("version", buildInfo.Main.Version),
	)
}

func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
