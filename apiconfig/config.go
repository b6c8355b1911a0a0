package apiconfig

import "time"

type Config struct {
	Api       ApiConfig        `koanf:"api"`
	ChainNode ChainNodeConfig  `koanf:"chain_node"`
	Treasury  TreasuryConfig   `koanf:"treasury"`
	Scheduler SchedulerConfig  `koanf:"scheduler"`
	Webhook   WebhookConfig    `koanf:"webhook"`
	Secrets   SecretsConfig    `koanf:"secrets"`
	Sqlite    SqliteConfig     `koanf:"sqlite"`
	Nats      NatsServerConfig `koanf:"nats"`
	TestMode  bool             `koanf:"test_mode"`
}

type ApiConfig struct {
	AdminServerPort int    `koanf:"admin_server_port"`
	PublicUrl       string `koanf:"public_url"`
}

type ChainNodeConfig struct {
	// Url is the cometbft RPC endpoint, RestUrl the gRPC-gateway REST endpoint.
	Url           string `koanf:"url"`
	RestUrl       string `koanf:"rest_url"`
	AddressPrefix string `koanf:"address_prefix"`
	Denom         string `koanf:"denom"`
}

type TreasuryConfig struct {
	// SecretRef is the key the treasury mnemonic lives under in the secret store.
	SecretRef       string `koanf:"secret_ref"`
	RegistrationFee int64  `koanf:"registration_fee"`
	InitialFunding  int64  `koanf:"initial_funding"`
}

type SchedulerConfig struct {
	Interval        time.Duration `koanf:"interval"`
	Workers         int           `koanf:"workers"`
	JobTimeout      time.Duration `koanf:"job_timeout"`
	MetricsInterval time.Duration `koanf:"metrics_interval"`
	DefaultGasPrice uint64        `koanf:"default_gas_price"`
}

type WebhookConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type SecretsConfig struct {
	Path       string `koanf:"path"`
	Passphrase string
}

type SqliteConfig struct {
	Path string `koanf:"path"`
}

type NatsServerConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	StoreDir string `koanf:"store_dir"`
}
