// Command leewave fits internal gravity waves to float observations and
// serves the fitting engine over HTTP.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "leewave",
	Short: "Internal gravity wave parameter estimation",
	Long: `Fit plane internal gravity waves to Lagrangian float profiles.

Observations are CSV files with a header naming the columns time, dist,
depth, u, v, w and b, or .msgpack.zst files written by "leewave synth".
Environment variables prefixed LEEWAVE_ provide defaults; flags override them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, gridCmd, fitCmd, omegaCmd, synthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the JSON logger. LEEWAVE_LOG_FILE adds rotating file
// output next to stderr.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch v := strings.ToLower(os.Getenv("LEEWAVE_LOG_LEVEL")); v {
	case "", "info":
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid LEEWAVE_LOG_LEVEL %q, using info\n", v)
	}

	var w io.Writer = os.Stderr
	if path := os.Getenv("LEEWAVE_LOG_FILE"); path != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    64, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
