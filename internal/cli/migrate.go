package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/store"
)

var migrateDBPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the SQLite schema migrations",
	Long: "Brings a local SQLite database up to the latest schema. The hosted Supabase " +
		"schema is managed separately from deploy/supabase/schema.sql.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		path := migrateDBPath
		if path == "" {
			if cfg.StoreBackend != "sqlite" {
				return fmt.Errorf("STORE_BACKEND is %q; pass --db to migrate a SQLite file", cfg.StoreBackend)
			}
			path = cfg.DatabasePath
		}

		st, err := store.NewSQLiteStore(path, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		logger.Info("Schema is up to date", zap.String("path", path))
		return nil
	},
}

var tokenUserID string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		if cfg.AuthJWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is not set")
		}
		token, err := newValidator(cfg.AuthJWTSecret).GenerateJWT(tokenUserID)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDBPath, "db", "", "SQLite database path (default: $DATABASE_PATH)")
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User id to put in the token subject")
	_ = tokenCmd.MarkFlagRequired("user")

	RootCmd.AddCommand(migrateCmd, tokenCmd)
}
