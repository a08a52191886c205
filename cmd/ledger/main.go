package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JoeShih716/go-bank-ledger/internal/config"
)

// cli 保存所有子命令共用的設定與 logger
type cli struct {
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Bank account ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = cfg.Log.NewLogger()
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "config/config.yaml", "YAML config file, empty to use environment only")

	rootCmd.AddCommand(serveCommand(c))
	rootCmd.AddCommand(migrateCommand(c))
	rootCmd.AddCommand(reconcileCommand(c))
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("ledger exited")
		os.Exit(1)
	}
}
