package main

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/awsutil"
	"github.com/docuflow/intake-service/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var secrets awsutil.SecretsProvider
		if cfg.Store.DBSecretARN != "" {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return eris.Wrap(err, "load AWS config")
			}
			secrets = awsutil.NewSecretsProvider(secretsmanager.NewFromConfig(awsCfg))
		}

		database, err := bootstrap.OpenDatabase(ctx, cfg.Store, secrets)
		if err != nil {
			return err
		}
		defer database.Close()

		m, ok := database.(interface{ Migrate(context.Context) error })
		if !ok {
			// SQLite applies its schema when opened.
			zap.L().Info("schema is current", zap.String("driver", cfg.Store.Driver))
			return nil
		}
		if err := m.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
