package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "AGENTPAY"

// The only intent type the engine executes.
const IntentType_SendUsdc = "send_usdc"

type Chain string

const (
	Chain_Base        Chain = "base"
	Chain_BaseSepolia Chain = "base-sepolia"
	Chain_Ethereum    Chain = "ethereum"
	Chain_Sepolia     Chain = "sepolia"
)

// Known USDC deployments, used when usdc.contract-address is not set explicitly.
var usdcContractAddresses = map[Chain]string{
	Chain_Base:        "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
	Chain_BaseSepolia: "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
	Chain_Ethereum:    "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	Chain_Sepolia:     "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238",
}

var chainIds = map[Chain]int64{
	Chain_Base:        8453,
	Chain_BaseSepolia: 84532,
	Chain_Ethereum:    1,
	Chain_Sepolia:     11155111,
}

type Config struct {
	Debug   bool
	Chain   Chain
	ChainId int64

	EthereumRpcConfig EthereumRpcConfig
	UsdcConfig        UsdcConfig
	DatabaseConfig    DatabaseConfig
	IndexerConfig     IndexerConfig
	SpendPowerConfig  SpendPowerConfig
	HealthConfig      HealthConfig
	QuoteConfig       QuoteConfig
	ExecutionConfig   ExecutionConfig
	SignerConfig      SignerConfig
	RpcConfig         RpcConfig
	DataDogConfig     DataDogConfig
	PrometheusConfig  PrometheusConfig
}

type EthereumRpcConfig struct {
	RpcUrl       string
	ProviderName string
	MaxRetries   int
}

type UsdcConfig struct {
	ContractAddress string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DbName      string
	SchemaName  string
	SSLMode     string
	SSLCert     string
	SSLKey      string
	SSLRootCert string
}

type IndexerConfig struct {
	Confirmations       uint64
	LookbackBlocks      uint64
	BatchSize           uint64
	ReorgBuffer         uint64
	PollIntervalSeconds int
}

type SpendPowerConfig struct {
	SafetyBps        int64
	SafetyFloorCents int64
	// 0 disables the cap
	SafetyCapCents int64
	DegradationBps int64
}

type HealthConfig struct {
	FreshSeconds int
	StaleSeconds int
}

type QuoteConfig struct {
	TtlSeconds int
}

type ExecutionConfig struct {
	AllowDegraded bool
}

type SignerConfig struct {
	ServerCustody bool
	Url           string
}

type RpcConfig struct {
	HttpPort int
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

var (
	Debug           = "debug"
	ChainName       = "chain"
	ChainIdOverride = "chain.id"

	EthereumRpcUrl          = "ethereum.rpc-url"
	EthereumRpcProviderName = "ethereum.provider-name"
	EthereumRpcMaxRetries   = "ethereum.max-retries"

	UsdcContractAddress = "usdc.contract-address"

	DatabaseHost        = "database.host"
	DatabasePort        = "database.port"
	DatabaseUser        = "database.user"
	DatabasePassword    = "database.password"
	DatabaseDbName      = "database.db_name"
	DatabaseSchemaName  = "database.schema_name"
	DatabaseSSLMode     = "database.ssl_mode"
	DatabaseSSLCert     = "database.ssl_cert"
	DatabaseSSLKey      = "database.ssl_key"
	DatabaseSSLRootCert = "database.ssl_root_cert"

	IndexerConfirmations       = "indexer.confirmations"
	IndexerLookbackBlocks      = "indexer.lookback-blocks"
	IndexerBatchSize           = "indexer.batch-size"
	IndexerReorgBuffer         = "indexer.reorg-buffer"
	IndexerPollIntervalSeconds = "indexer.poll-interval-seconds"

	SpendPowerSafetyBps        = "spend-power.safety-bps"
	SpendPowerSafetyFloorCents = "spend-power.safety-floor-cents"
	SpendPowerSafetyCapCents   = "spend-power.safety-cap-cents"
	SpendPowerDegradationBps   = "spend-power.degradation-bps"

	HealthFreshSeconds = "health.fresh-seconds"
	HealthStaleSeconds = "health.stale-seconds"

	QuoteTtlSeconds = "quote.ttl-seconds"

	ExecutionAllowDegraded = "execution.allow-degraded"

	SignerServerCustody = "signer.server-custody"
	SignerUrl           = "signer.url"

	RpcHttpPort = "rpc.http-port"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample_rate"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"
)

func NewConfig() *Config {
	chain := Chain(viper.GetString(normalizeFlagName(ChainName)))
	if chain == "" {
		chain = Chain_Base
	}

	chainId := viper.GetInt64(normalizeFlagName(ChainIdOverride))
	if chainId == 0 {
		chainId = chainIds[chain]
	}

	usdcAddress := strings.ToLower(viper.GetString(normalizeFlagName(UsdcContractAddress)))
	if usdcAddress == "" {
		usdcAddress = usdcContractAddresses[chain]
	}

	return &Config{
		Debug:   viper.GetBool(normalizeFlagName(Debug)),
		Chain:   chain,
		ChainId: chainId,

		EthereumRpcConfig: EthereumRpcConfig{
			RpcUrl:       viper.GetString(normalizeFlagName(EthereumRpcUrl)),
			ProviderName: withDefault(viper.GetString(normalizeFlagName(EthereumRpcProviderName)), "primary"),
			MaxRetries:   viper.GetInt(normalizeFlagName(EthereumRpcMaxRetries)),
		},

		UsdcConfig: UsdcConfig{
			ContractAddress: usdcAddress,
		},

		DatabaseConfig: DatabaseConfig{
			Host:        viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:        viper.GetInt(normalizeFlagName(DatabasePort)),
			User:        viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:    viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:      viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName:  viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:     viper.GetString(normalizeFlagName(DatabaseSSLMode)),
			SSLCert:     viper.GetString(normalizeFlagName(DatabaseSSLCert)),
			SSLKey:      viper.GetString(normalizeFlagName(DatabaseSSLKey)),
			SSLRootCert: viper.GetString(normalizeFlagName(DatabaseSSLRootCert)),
		},

		IndexerConfig: IndexerConfig{
			Confirmations:       viper.GetUint64(normalizeFlagName(IndexerConfirmations)),
			LookbackBlocks:      viper.GetUint64(normalizeFlagName(IndexerLookbackBlocks)),
			BatchSize:           viper.GetUint64(normalizeFlagName(IndexerBatchSize)),
			ReorgBuffer:         viper.GetUint64(normalizeFlagName(IndexerReorgBuffer)),
			PollIntervalSeconds: viper.GetInt(normalizeFlagName(IndexerPollIntervalSeconds)),
		},

		SpendPowerConfig: SpendPowerConfig{
			SafetyBps:        viper.GetInt64(normalizeFlagName(SpendPowerSafetyBps)),
			SafetyFloorCents: viper.GetInt64(normalizeFlagName(SpendPowerSafetyFloorCents)),
			SafetyCapCents:   viper.GetInt64(normalizeFlagName(SpendPowerSafetyCapCents)),
			DegradationBps:   viper.GetInt64(normalizeFlagName(SpendPowerDegradationBps)),
		},

		HealthConfig: HealthConfig{
			FreshSeconds: viper.GetInt(normalizeFlagName(HealthFreshSeconds)),
			StaleSeconds: viper.GetInt(normalizeFlagName(HealthStaleSeconds)),
		},

		QuoteConfig: QuoteConfig{
			TtlSeconds: viper.GetInt(normalizeFlagName(QuoteTtlSeconds)),
		},

		ExecutionConfig: ExecutionConfig{
			AllowDegraded: viper.GetBool(normalizeFlagName(ExecutionAllowDegraded)),
		},

		SignerConfig: SignerConfig{
			ServerCustody: viper.GetBool(normalizeFlagName(SignerServerCustody)),
			Url:           viper.GetString(normalizeFlagName(SignerUrl)),
		},

		RpcConfig: RpcConfig{
			HttpPort: viper.GetInt(normalizeFlagName(RpcHttpPort)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},
	}
}

// NewTestConfig returns a config with every tunable set to a sane value for unit tests,
// independent of flags and environment.
func NewTestConfig() *Config {
	return &Config{
		Chain:   Chain_Base,
		ChainId: chainIds[Chain_Base],
		EthereumRpcConfig: EthereumRpcConfig{
			RpcUrl:       "http://localhost:8545",
			ProviderName: "primary",
		},
		UsdcConfig: UsdcConfig{
			ContractAddress: usdcContractAddresses[Chain_Base],
		},
		IndexerConfig: IndexerConfig{
			Confirmations:       3,
			LookbackBlocks:      100,
			BatchSize:           50,
			ReorgBuffer:         5,
			PollIntervalSeconds: 15,
		},
		HealthConfig: HealthConfig{
			FreshSeconds: 60,
			StaleSeconds: 600,
		},
		QuoteConfig: QuoteConfig{
			TtlSeconds: 300,
		},
	}
}

func withDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}

// Validate rejects combinations of settings the engine cannot run with.
func (c *Config) Validate() error {
	idx := c.IndexerConfig
	// a log first seen one block short of confirmed must still fall inside the next scan window
	if idx.ReorgBuffer+1 < idx.Confirmations {
		return errors.Errorf("%s (%d) must be at least %s - 1 (%d)",
			IndexerReorgBuffer, idx.ReorgBuffer, IndexerConfirmations, idx.Confirmations)
	}
	if idx.BatchSize == 0 {
		return errors.Errorf("%s must be positive", IndexerBatchSize)
	}
	if c.HealthConfig.FreshSeconds > c.HealthConfig.StaleSeconds {
		return errors.Errorf("%s (%d) must not exceed %s (%d)",
			HealthFreshSeconds, c.HealthConfig.FreshSeconds, HealthStaleSeconds, c.HealthConfig.StaleSeconds)
	}
	return nil
}

func (c *Config) GetUsdcContractAddress() string {
	return strings.ToLower(c.UsdcConfig.ContractAddress)
}

