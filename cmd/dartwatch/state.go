package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dartwatch/internal/config"
	"dartwatch/internal/dart"
	"dartwatch/internal/storage"
	logx "dartwatch/pkg/logx"
)

func newStateCmd(opts *cliOptions) *cobra.Command {
	var set string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show (or set) the last announced receipt number",
		Long: `Show the receipt number stored by the last announcing run.

--set overwrites it, e.g. to skip a backlog before the first real run.
Credentials are not needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showState(cmd.Context(), cmd.OutOrStdout(), opts, set, cmd.Flags().Changed("set"))
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "store this receipt number")
	return cmd
}

func showState(ctx context.Context, out io.Writer, opts *cliOptions, set string, doSet bool) error {
	cfg, err := config.Load(opts.path(), opts.env())
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, logx.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	if doSet {
		set = strings.TrimSpace(set)
		if set == "" {
			return errors.New("--set needs a receipt number")
		}
		if err := store.Save(ctx, storage.State{}.WithLast(set)); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		fmt.Fprintf(out, "%s last_rcp_no = %s\n", color.New(color.FgGreen).Sprint("SET"), set)
		return nil
	}

	st, err := store.Load(ctx)
	var ce *storage.CorruptError
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("CORRUPT"), ce)
		fmt.Fprintln(out, "  the next run treats this as a first run")
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(out, "state:   %s (%s)\n", cfg.Storage.Path, cfg.Storage.Driver)
	if st.LastRcpNo == nil {
		fmt.Fprintf(out, "last:    %s\n", color.New(color.FgYellow).Sprint("(none)"))
		return nil
	}
	fmt.Fprintf(out, "last:    %s\n", color.New(color.FgCyan).Sprint(st.Last()))
	fmt.Fprintf(out, "viewer:  %s\n", dart.DetailURL(st.Last()))
	return nil
}
