package main

import (
	"errors"

	"github.com/spf13/cobra"

	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

func migrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the MySQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Storage.Driver != config.StorageMySQL {
				return errors.New("migrate requires storage.driver: mysql")
			}
			ctx := cmd.Context()
			client, err := mysql.NewClient(ctx, c.cfg.MySQL)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := mysql_adapter.NewStore(client).Migrate(ctx); err != nil {
				return err
			}
			c.logger.Info("migration completed")
			return nil
		},
	}
}
