package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/sketchduel/internal/connection"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/session"
	"github.com/rickgao/sketchduel/internal/transport"
)

// enter is how a command gets the player into a room.
type enter func(ctx context.Context, s *session.Session) (model.GameState, error)

// runGame sets up the runtime, enters a room and hands over to the
// interactive loop until stdin closes or a signal arrives.
func runGame(cmd *cobra.Command, opts *options, in enter) error {
	ctx, cancel := signalContext(cmd.Context(), opts.logger)
	defer cancel()

	rt, err := newRuntime(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := in(ctx, rt.session)
	if err != nil {
		return err
	}

	p := newPlayer(rt.session, cmd.InOrStdin(), cmd.OutOrStdout(), opts.logger)
	p.printState(st)
	return p.run(ctx)
}

func newCreateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and host it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGame(cmd, opts, func(ctx context.Context, s *session.Session) (model.GameState, error) {
				return s.Create(ctx, opts.playerName())
			})
		},
	}
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "player name (defaults to player.name)")
	return cmd
}

func newJoinCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join an existing room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGame(cmd, opts, func(ctx context.Context, s *session.Session) (model.GameState, error) {
				return s.Join(ctx, args[0], opts.playerName())
			})
		},
	}
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "player name (defaults to player.name)")
	return cmd
}

func newResumeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Rejoin the room from the last saved session",
		Long: "Rejoin the room recorded in the most recent session snapshot.\n" +
			"Snapshots older than recovery.staleness are discarded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGame(cmd, opts, func(ctx context.Context, s *session.Session) (model.GameState, error) {
				return s.Resume(ctx)
			})
		},
	}
}

func newProbeCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the game server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg := opts.cfg
			mgr, err := connection.NewManager(cfg.Connection(), transport.NewWebSocketDialer(cfg.Transport(), opts.logger), nil, opts.logger)
			if err != nil {
				return err
			}
			defer mgr.Destroy()

			start := time.Now()
			if err := mgr.Probe(ctx); err != nil {
				return fmt.Errorf("probe %s: %w", cfg.Server.URL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", cfg.Server.URL, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall probe timeout")
	return cmd
}
