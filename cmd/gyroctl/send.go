package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/timeutil"
)

// sweepSteps is the number of points in one pass of the simulated stream,
// x running from -5 to 5 in steps of 0.1.
const sweepSteps = 101

// sweepOffsets returns the i-th frame of the simulated stream.
func sweepOffsets(i int) calibration.Offsets {
	x := math.Round((-5+0.1*float64(i%sweepSteps))*10) / 10
	return calibration.Offsets{X: x, Y: 2 * math.Sin(x), Z: 1.5 * math.Cos(x)}
}

func sendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [x y z]",
		Short: "Send calibration frames to an ingest server",
		Long: `With three values, send a single frame. Without arguments, send a
simulated stream until interrupted or --count frames have been sent.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return fmt.Errorf("expected 0 or 3 values, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			host, _ := cmd.Flags().GetString("host")
			port, _ := cmd.Flags().GetInt("port")
			interval, _ := cmd.Flags().GetDuration("interval")
			count, _ := cmd.Flags().GetInt("count")

			if err := calibration.ValidatePort(port); err != nil {
				return err
			}

			var single *calibration.Offsets
			if len(args) == 3 {
				o, err := calibration.ParseFrame(strings.Join(args, ","))
				if err != nil {
					return err
				}
				single = &o
			}

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", addr, err)
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			if single != nil {
				if _, err := io.WriteString(conn, calibration.FormatFrame(*single)); err != nil {
					return fmt.Errorf("failed to send frame: %w", err)
				}
				fmt.Fprintf(out, "%s sent %s to %s\n", color.New(color.FgGreen).Sprint("✓"), *single, addr)
				return nil
			}

			fmt.Fprintf(out, "streaming to %s every %s\n", addr, interval)
			sent, err := streamFrames(cmd.Context(), conn, out, a.clock, interval, count)
			fmt.Fprintf(out, "%s %d frames sent\n", color.New(color.FgGreen).Sprint("✓"), sent)
			return err
		},
	}

	cmd.Flags().String("host", "127.0.0.1", "Ingest server host")
	cmd.Flags().Int("port", calibration.DefaultListenPort, "Ingest server port")
	cmd.Flags().Duration("interval", time.Second, "Delay between streamed frames")
	cmd.Flags().Int("count", 0, "Stop after this many streamed frames (0 streams until interrupted)")
	return cmd
}

// streamFrames writes the simulated stream to w, one frame per tick of
// interval (back to back when interval is not positive). It stops after
// count frames when count is positive, or when ctx is done.
func streamFrames(ctx context.Context, w io.Writer, out io.Writer, clock timeutil.Clock, interval time.Duration, count int) (int, error) {
	var tick <-chan time.Time
	if interval > 0 {
		t := clock.NewTicker(interval)
		defer t.Stop()
		tick = t.C()
	}

	sent := 0
	for count <= 0 || sent < count {
		if sent > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return sent, nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return sent, nil
		}

		o := sweepOffsets(sent)
		if _, err := io.WriteString(w, calibration.FormatFrame(o)); err != nil {
			return sent, fmt.Errorf("failed to send frame %d: %w", sent+1, err)
		}
		fmt.Fprintf(out, "sent %s\n", o)
		sent++
	}
	return sent, nil
}
