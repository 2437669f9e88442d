// Package cmd implements the gateway CLI: serve, migrate, and keys import.
package cmd

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Multi-provider AI gateway: routing, caching, quota, and billing",
	Long: `gateway fronts multiple upstream AI providers behind one tenant-facing
API, picking a provider per request by cost, latency, or quality, caching
deterministic responses, enforcing per-tenant quota, and recording usage
for billing.

All runtime configuration is read from the process environment (see
common/config). --config is bound into viper but no subcommand reads it;
"keys import" takes its seed file through its own --file flag.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a bootstrap file (bound into viper; not read by any subcommand)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		return err
	}
	return nil
}
