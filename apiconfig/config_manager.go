package apiconfig

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// defaultConfig is the base layer; the yaml file and environment override it.
func defaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Interval:        30 * time.Second,
			Workers:         4,
			JobTimeout:      60 * time.Second,
			MetricsInterval: 10 * time.Minute,
			DefaultGasPrice: 10,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
	}
}

type ConfigManager struct {
	currentConfig Config
	KoanProvider  koanf.Provider
	mutex         sync.Mutex
}

func LoadDefaultConfigManager() (*ConfigManager, error) {
	return LoadConfigManagerWithPath(getConfigPath())
}

// LoadConfigManagerWithPath allows tests to supply an explicit path.
func LoadConfigManagerWithPath(configPath string) (*ConfigManager, error) {
	manager := ConfigManager{
		KoanProvider: file.Provider(configPath),
	}
	if err := manager.Load(); err != nil {
		return nil, err
	}
	return &manager, nil
}

func (cm *ConfigManager) Load() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	config, err := readConfig(cm.KoanProvider)
	if err != nil {
		return err
	}
	cm.currentConfig = config
	return nil
}

func (cm *ConfigManager) GetApiConfig() ApiConfig {
	return cm.currentConfig.Api
}

func (cm *ConfigManager) GetChainNodeConfig() ChainNodeConfig {
	return cm.currentConfig.ChainNode
}

func (cm *ConfigManager) GetTreasuryConfig() TreasuryConfig {
	return cm.currentConfig.Treasury
}

func (cm *ConfigManager) GetSchedulerConfig() SchedulerConfig {
	return cm.currentConfig.Scheduler
}

func (cm *ConfigManager) GetWebhookConfig() WebhookConfig {
	return cm.currentConfig.Webhook
}

func (cm *ConfigManager) GetSecretsConfig() SecretsConfig {
	return cm.currentConfig.Secrets
}

func (cm *ConfigManager) GetSqliteConfig() SqliteConfig {
	return cm.currentConfig.Sqlite
}

func (cm *ConfigManager) GetNatsConfig() NatsServerConfig {
	return cm.currentConfig.Nats
}

// GetConfig returns a snapshot copy of the current configuration.
// The returned value should be treated as read-only by callers.
func (cm *ConfigManager) GetConfig() Config {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.currentConfig
}

func getConfigPath() string {
	configPath := os.Getenv("API_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml" // Default value if the environment variable is not set
	}
	return configPath
}

func readConfig(provider koanf.Provider) (Config, error) {
	k := koanf.New(".")
	parser := yaml.Parser()

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		log.Fatalf("error loading defaults: %v", err)
	}
	if err := k.Load(provider, parser); err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	err := k.Load(env.Provider("MAPI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MAPI_")), "__", ".", -1)
	}), nil)
	if err != nil {
		log.Fatalf("error loading env: %v", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		log.Fatalf("error unmarshalling config: %v", err)
	}

	// The secrets passphrase never lives in the YAML file.
	if passphrase, found := os.LookupEnv("SECRETS_PASSPHRASE"); found {
		config.Secrets.Passphrase = passphrase
	} else {
		log.Printf("Warning: SECRETS_PASSPHRASE environment variable not set - secret store operations may fail")
	}

	if treasuryRef, found := os.LookupEnv("TREASURY_SECRET_REF"); found {
		config.Treasury.SecretRef = treasuryRef
		log.Printf("Loaded TREASURY_SECRET_REF: %+v", treasuryRef)
	}

	return config, nil
}
