package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/store"
)

func fileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file x y z [port]",
		Short: "Write a calibration preferences file",
		Long: `Write the offsets (and optionally the ingest port) straight to a
preferences file. Running processes pick the values up on their next reload.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")

			o, err := calibration.ParseFrame(strings.Join(args[:3], ","))
			if err != nil {
				return err
			}
			p := calibration.DefaultProfile().WithOffsets(o)
			if len(args) == 4 {
				port, err := strconv.Atoi(strings.TrimSpace(args[3]))
				if err != nil {
					return fmt.Errorf("invalid port %q: %w", args[3], err)
				}
				p.ListenPort = port
			}
			if err := p.Validate(); err != nil {
				return err
			}

			if err := a.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return &calibration.PersistenceError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
			}
			if err := store.WritePrefsFile(a.fs, path, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s to %s\n", color.New(color.FgGreen).Sprint("✓"), p, path)
			return nil
		},
	}
	cmd.Flags().String("path", defaultPrefsPath(), "Preferences file to write")
	return cmd
}

func readCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the values of a calibration preferences file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			p, err := store.ReadPrefsFile(a.fs, path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", color.New(color.Bold).Sprint(path))
			fmt.Fprintf(out, "  x:    %g\n", p.OffsetX)
			fmt.Fprintf(out, "  y:    %g\n", p.OffsetY)
			fmt.Fprintf(out, "  z:    %g\n", p.OffsetZ)
			fmt.Fprintf(out, "  port: %d\n", p.ListenPort)
			return nil
		},
	}
	cmd.Flags().String("path", defaultPrefsPath(), "Preferences file to read")
	return cmd
}
