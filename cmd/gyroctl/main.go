// Command gyroctl talks to a running gyrohookd and manipulates calibration
// files directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gyrohook/internal/config"
	"github.com/banshee-data/gyrohook/internal/fsutil"
	"github.com/banshee-data/gyrohook/internal/store"
	"github.com/banshee-data/gyrohook/internal/timeutil"
	"github.com/banshee-data/gyrohook/internal/version"
)

// app holds what the commands touch outside the process.
type app struct {
	fs    fsutil.FileSystem
	clock timeutil.Clock
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "gyroctl",
		Short:   "Send and inspect gyroscope calibration offsets",
		Version: version.String(),
		Long: `gyroctl sends calibration frames to a gyrohookd ingest server,
reads and writes calibration preference files, and estimates gyroscope bias
from stationary samples.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(sendCmd(a))
	rootCmd.AddCommand(fileCmd(a))
	rootCmd.AddCommand(readCmd(a))
	rootCmd.AddCommand(estimateCmd(a))
	return rootCmd
}

// defaultPrefsPath is where gyrohookd keeps its snapshot with no config.
func defaultPrefsPath() string {
	cfg := config.EmptyServiceConfig()
	return store.New(store.Options{Dir: cfg.GetDataDir(), Name: cfg.GetPrefsName()}).Path()
}

// positionalNumbers keeps negative numbers such as "-2" from being read as
// shorthand flags. The flag parser treats anything starting with '-' as a
// flag, so those arguments get a leading space, which the frame parser
// trims.
func positionalNumbers(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		if len(arg) > 1 && arg[0] == '-' {
			if _, err := strconv.ParseFloat(arg, 64); err == nil {
				out[i] = " " + arg
			}
		}
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(&app{fs: fsutil.OSFileSystem{}, clock: timeutil.RealClock{}})
	rootCmd.SetArgs(positionalNumbers(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
