package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup and passed by reference into the pipeline.
// Missing required credentials fail here, not per request.
type Config struct {
	Server    ServerConfig
	Venues    VenuesConfig
	Chains    ChainsConfig
	PiNetwork PiNetworkConfig
	Quantum   QuantumConfig
	Fees      FeesConfig
	Fraud     FraudConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Alert     AlertConfig
	Tracing   TracingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port          int
	APIKey        string
	WebhookSecret string
}

type VenuesConfig struct {
	Names        []string
	BaseURLs     map[string]string
	APIKey       string
	APISecret    string
	QuoteTimeout time.Duration
	RatePerSec   float64
	RateBurst    int
}

type ChainsConfig struct {
	RegistryPath    string
	SigningKey      string
	TreasuryAddress string
	ReceiptInterval time.Duration
	ReceiptTimeout  time.Duration
}

type PiNetworkConfig struct {
	BaseURL     string
	APIKey      string
	WalletSeed  string
	NetworkName string
}

type QuantumConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type FeesConfig struct {
	Rate float64
}

type FraudConfig struct {
	// Engine selects the screener implementation: "rules" or "model".
	Engine string
}

type RedisConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AlertConfig struct {
	WebhookURL string
	Cooldown   time.Duration
}

type TracingConfig struct {
	OTLPEndpoint string
	Insecure     bool
}

type LogConfig struct {
	Level    string
	FilePath string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnvInt("API_PORT", 3000),
			APIKey:        getEnv("API_KEY", ""),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		},
		Venues: VenuesConfig{
			APIKey:       getEnv("VENUE_API_KEY", ""),
			APISecret:    getEnv("VENUE_API_SECRET", ""),
			QuoteTimeout: time.Duration(getEnvInt("VENUE_QUOTE_TIMEOUT_MS", 3000)) * time.Millisecond,
			RatePerSec:   getEnvFloat("VENUE_RATE_PER_SEC", 5),
			RateBurst:    getEnvInt("VENUE_RATE_BURST", 10),
			BaseURLs:     map[string]string{},
		},
		Chains: ChainsConfig{
			RegistryPath:    getEnv("CHAIN_REGISTRY_PATH", "chains.yaml"),
			SigningKey:      getEnv("CHAIN_SIGNING_KEY", ""),
			TreasuryAddress: getEnv("TREASURY_ADDRESS", ""),
			ReceiptInterval: time.Duration(getEnvInt("CHAIN_RECEIPT_INTERVAL_MS", 2000)) * time.Millisecond,
			ReceiptTimeout:  time.Duration(getEnvInt("CHAIN_RECEIPT_TIMEOUT_SEC", 120)) * time.Second,
		},
		PiNetwork: PiNetworkConfig{
			BaseURL:     getEnv("PI_API_URL", "https://api.minepi.com/v2"),
			APIKey:      getEnv("PI_API_KEY", ""),
			WalletSeed:  getEnv("PI_WALLET_PRIVATE_SEED", ""),
			NetworkName: getEnv("PI_NETWORK", "Pi Testnet"),
		},
		Quantum: QuantumConfig{
			URL:     getEnv("QUANTUM_RNG_URL", "https://api.quantinuum.com/rng"),
			APIKey:  getEnv("QUANTUM_RNG_API_KEY", ""),
			Timeout: time.Duration(getEnvInt("QUANTUM_RNG_TIMEOUT_MS", 2000)) * time.Millisecond,
		},
		Fees: FeesConfig{
			Rate: getEnvFloat("FEE_RATE", 0.01),
		},
		Fraud: FraudConfig{
			Engine: getEnv("FRAUD_ENGINE", "rules"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Topic: getEnv("KAFKA_TOPIC", "transaction_completed"),
		},
		Alert: AlertConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:   time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 300)) * time.Second,
		},
		Tracing: TracingConfig{
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
			Insecure:     getEnvBool("OTLP_INSECURE", true),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE_PATH", "./logs/quantum-pay.log"),
		},
	}

	cfg.Venues.Names = splitList(getEnv("VENUES", "binance,kraken,coinbasepro"))
	for _, name := range cfg.Venues.Names {
		key := "VENUE_URL_" + strings.ToUpper(name)
		if url := getEnv(key, ""); url != "" {
			cfg.Venues.BaseURLs[name] = url
		}
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigurationError marks a missing or malformed startup credential.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Field)
}

func (c *Config) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"API_KEY", c.Server.APIKey},
		{"VENUE_API_KEY", c.Venues.APIKey},
		{"VENUE_API_SECRET", c.Venues.APISecret},
		{"TREASURY_ADDRESS", c.Chains.TreasuryAddress},
		{"CHAIN_SIGNING_KEY", c.Chains.SigningKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigurationError{Field: r.field}
		}
	}
	if len(c.Venues.Names) == 0 {
		return &ConfigurationError{Field: "VENUES"}
	}
	if c.Fees.Rate < 0 || c.Fees.Rate >= 1 {
		return fmt.Errorf("FEE_RATE must be in [0,1), got %f", c.Fees.Rate)
	}
	if c.Fraud.Engine != "rules" && c.Fraud.Engine != "model" {
		return fmt.Errorf("FRAUD_ENGINE must be \"rules\" or \"model\", got %q", c.Fraud.Engine)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
