package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "agentpay",
	Short: "Agent USDC payment engine: spend power, policy gated quotes and chain-reconciled receipts",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().StringP(config.ChainName, "c", string(config.Chain_Base), "The chain to use (base, base-sepolia, ethereum, sepolia)")
	rootCmd.PersistentFlags().Int64(config.ChainIdOverride, 0, `Override the chain id derived from --chain`)

	rootCmd.PersistentFlags().String(config.EthereumRpcUrl, "", `e.g. "http://<hostname>:8545"`)
	rootCmd.PersistentFlags().String(config.EthereumRpcProviderName, "primary", `Name recorded with RPC health samples`)
	rootCmd.PersistentFlags().Int(config.EthereumRpcMaxRetries, 3, `Attempts per RPC call before giving up`)

	rootCmd.PersistentFlags().String(config.UsdcContractAddress, "", `USDC token address (defaults to the known deployment for --chain)`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "agentpay", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "agentpay", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL SSL mode (disable, require, verify-ca, verify-full)`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLCert, "", `Path to the client SSL certificate`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLKey, "", `Path to the client SSL key`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLRootCert, "", `Path to the SSL root certificate`)

	rootCmd.PersistentFlags().Uint64(config.IndexerConfirmations, 3, `Blocks a transfer must be buried under before it is final`)
	rootCmd.PersistentFlags().Uint64(config.IndexerLookbackBlocks, 1000, `Blocks to scan on first start`)
	rootCmd.PersistentFlags().Uint64(config.IndexerBatchSize, 500, `Maximum block range per eth_getLogs call`)
	rootCmd.PersistentFlags().Uint64(config.IndexerReorgBuffer, 12, `Blocks re-scanned behind the cursor on every tick`)
	rootCmd.PersistentFlags().Int(config.IndexerPollIntervalSeconds, 15, `Seconds between indexer ticks`)

	rootCmd.PersistentFlags().Int64(config.SpendPowerSafetyBps, 0, `Safety buffer in basis points of the balance`)
	rootCmd.PersistentFlags().Int64(config.SpendPowerSafetyFloorCents, 0, `Minimum safety buffer in cents`)
	rootCmd.PersistentFlags().Int64(config.SpendPowerSafetyCapCents, 0, `Maximum safety buffer in cents (0 disables the cap)`)
	rootCmd.PersistentFlags().Int64(config.SpendPowerDegradationBps, 0, `Extra buffer in basis points of the balance applied while RPC health is not fresh`)

	rootCmd.PersistentFlags().Int(config.HealthFreshSeconds, 60, `Max age in seconds of the last good head sample to count as fresh`)
	rootCmd.PersistentFlags().Int(config.HealthStaleSeconds, 600, `Max age in seconds of the last good head sample to count as stale; older is unknown`)

	rootCmd.PersistentFlags().Int(config.QuoteTtlSeconds, 300, `Seconds a quote stays executable`)

	rootCmd.PersistentFlags().Bool(config.ExecutionAllowDegraded, false, `Allow executions while RPC health is stale`)

	rootCmd.PersistentFlags().Bool(config.SignerServerCustody, false, `Sign transactions with the custody signer instead of requiring user-signed payloads`)
	rootCmd.PersistentFlags().String(config.SignerUrl, "", `Base URL of the custody signer`)

	rootCmd.PersistentFlags().Int(config.RpcHttpPort, 7101, `http rpc port`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runVersionCmd)
	rootCmd.AddCommand(runDatabaseCmd)
	rootCmd.AddCommand(runTickCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})

}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

// bindCommandFlags binds a subcommand's own flags the same way the persistent flags are bound.
func bindCommandFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
