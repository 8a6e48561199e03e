package main

import (
	"fmt"
	"os"
	"time"

	"opd/opd-service/internal/config"
	"opd/opd-service/internal/httpapi"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/telemetry"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// devSecret signs tokens in development when JWT_SECRET is unset.
const devSecret = "opd-dev-secret"

func main() {
	rootCmd := &cobra.Command{
		Use:   "opd-service",
		Short: "OPD token and queue service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.IsDev()).
		With().Str("service", cfg.ServiceName).Logger()
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func authenticator(cfg *config.Config, logger zerolog.Logger) *httpapi.Authenticator {
	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn().Msg("JWT_SECRET not set, using the development secret")
		secret = devSecret
	}
	return httpapi.NewAuthenticator(secret, cfg.JWTIssuer)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, realtime endpoint and notification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, logger)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations and rewrite stored collections at the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg, logger)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject    string
		role       string
		department string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			actor, err := tokenActor(subject, role, department)
			if err != nil {
				return err
			}
			raw, err := authenticator(cfg, logger).Sign(actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id, or patient id for patient tokens")
	cmd.Flags().StringVar(&role, "role", string(models.RoleReceptionist), "ADMIN, DOCTOR, RECEPTIONIST or PATIENT")
	cmd.Flags().StringVar(&department, "department", "", "doctor department")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func tokenActor(subject, role, department string) (httpapi.Actor, error) {
	if subject == "" {
		return httpapi.Actor{}, fmt.Errorf("--sub is required")
	}
	parsedRole, ok := models.ParseRole(role)
	if !ok {
		return httpapi.Actor{}, fmt.Errorf("unknown role %q", role)
	}
	actor := httpapi.Actor{UserID: subject, Role: parsedRole}
	if department != "" {
		dept, ok := models.ParseDepartment(department)
		if !ok {
			return httpapi.Actor{}, fmt.Errorf("unknown department %q", department)
		}
		actor.Department = dept
	}
	return actor, nil
}
