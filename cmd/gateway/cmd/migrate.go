package cmd

import (
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/gateway/multiapi/common/logger"
	"github.com/gateway/multiapi/model"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit, without starting the servers",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	logger.SetupLogger()
	if err := model.InitDB(); err != nil {
		return err
	}
	logger.Logger.Info("migrations applied")
	return nil
}
