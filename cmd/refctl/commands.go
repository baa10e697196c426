package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"refroute/internal/app"
	jwttoken "refroute/internal/jwt_token"
	"refroute/internal/platform/config"
	"refroute/internal/platform/logger"
	"refroute/internal/platform/postgres"
	"refroute/internal/reference/identitysync"
	id "refroute/pkg/domain"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				return errors.New("DATABASE_URL is not set")
			}
			return postgres.Migrate(cfg.Database.URL, logger.New(cfg.LogLevel, cfg.LogFormat))
		},
	}
}

func parseTarget(args []string) (id.Scope, id.ReferenceID, error) {
	scope, err := id.ParseScope(args[0])
	if err != nil {
		return "", id.ReferenceID{}, err
	}
	refID, err := id.ParseReferenceID(args[1])
	if err != nil {
		return "", id.ReferenceID{}, err
	}
	return scope, refID, nil
}

func newReplayCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <scope> <reference-id>",
		Short: "Rebuild a reference from its ledger and report drift",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actorFor()
			if err != nil {
				return err
			}
			scope, refID, err := parseTarget(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Service.ReplayState(cmd.Context(), actor, scope, refID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newRepairCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <scope> <reference-id>",
		Short: "Rewrite a drifted reference from its latest movement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := g.actorFor()
			if err != nil {
				return err
			}
			scope, refID, err := parseTarget(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Service.Repair(cmd.Context(), actor, scope, refID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newSyncIdentityCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync-identity <user-id>",
		Short: "Refresh the holder snapshots of one user in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				var report identitysync.Report
				if force {
					report, err = a.Sync.Force(cmd.Context(), user)
				} else {
					report, err = a.Sync.Sync(cmd.Context(), user)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Ignore the stored checkpoint")
	return cmd
}

func newIdentityChangedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity-changed <user-id>",
		Short: "Publish a directory change so every replica resyncs the user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.PublishIdentityChange(cmd.Context(), user); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "published identity change for %s\n", user)
				return err
			})
		},
	}
}

func newTokenCmd(g *globals) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token for --as with --role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := g.actorFor()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
			token, err := tokens.GenerateAccessToken(uuid.UUID(actor.ID), actor.Role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
