package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"refroute/internal/app"
	"refroute/internal/platform/config"
	"refroute/internal/platform/logger"
	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
)

type globals struct {
	actor string
	role  string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:          "refctl",
		Short:        "Operator tools for the reference routing engine",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.actor, "as", "", "User UUID the command acts as")
	cmd.PersistentFlags().StringVar(&g.role, "role", "admin", "Role the command acts with")

	cmd.AddCommand(
		newMigrateCmd(),
		newReplayCmd(g),
		newRepairCmd(g),
		newSyncIdentityCmd(),
		newIdentityChangedCmd(),
		newTokenCmd(g),
	)
	return cmd
}

func (g *globals) actorFor() (models.Actor, error) {
	user, err := id.ParseUserID(g.actor)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid --as: %w", err)
	}
	return models.Actor{ID: user, Role: g.role}, nil
}

// withApp loads configuration, builds the engine and hands it to fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, logger.New(cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
