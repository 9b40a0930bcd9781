package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/lalita/wallet/internal/logger"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultMonnifyBaseURL = "https://sandbox.monnify.com"
	defaultAppURL         = "http://localhost:8000"
	defaultKafkaTopic     = "wallet.events"
	defaultDepositMin     = "100"
	defaultDepositMax     = "5000"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment: dev or prod
	Environment string

	// Address on which the wallet service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret shared with the auth service to verify access tokens
	JWTSecret string

	// Payment provider credentials. The secret key also signs webhooks
	MonnifyBaseURL      string
	MonnifyAPIKey       string
	MonnifySecretKey    string
	MonnifyContractCode string

	// Public url of the app, customers are redirected there after checkout
	AppURL string

	// Shared rate limit state. In-memory counter is used if empty
	RedisURL string

	// Comma separated broker list. Outbox relay is disabled if empty
	KafkaBrokers string
	KafkaTopic   string

	// Optional YAML file with fee tiers
	FeeScheduleFile string

	// Per deposit limits
	DepositMin string
	DepositMax string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		Environment:    defaultEnvironment,
		ListenAddr:     defaultListenAddr,
		MonnifyBaseURL: defaultMonnifyBaseURL,
		AppURL:         defaultAppURL,
		KafkaTopic:     defaultKafkaTopic,
		DepositMin:     defaultDepositMin,
		DepositMax:     defaultDepositMax,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"JWT_SECRET":            setString(&c.JWTSecret),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"MONNIFY_BASE_URL":      setString(&c.MonnifyBaseURL),
		"MONNIFY_API_KEY":       setString(&c.MonnifyAPIKey),
		"MONNIFY_SECRET_KEY":    setString(&c.MonnifySecretKey),
		"MONNIFY_CONTRACT_CODE": setString(&c.MonnifyContractCode),
		"APP_URL":               setString(&c.AppURL),
		"REDIS_URL":             setString(&c.RedisURL),
		"KAFKA_BROKERS":         setString(&c.KafkaBrokers),
		"KAFKA_TOPIC":           setString(&c.KafkaTopic),
		"FEE_SCHEDULE_FILE":     setString(&c.FeeScheduleFile),
		"DEPOSIT_MIN":           setString(&c.DepositMin),
		"DEPOSIT_MAX":           setString(&c.DepositMax),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("wallet", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.JWTSecret, "jwt-secret", "s", c.JWTSecret, "Secret to verify access tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.MonnifyBaseURL, "monnify-base-url", c.MonnifyBaseURL, "Monnify API base url")
	fs.StringVar(&c.MonnifyAPIKey, "monnify-api-key", c.MonnifyAPIKey, "Monnify API key")
	fs.StringVar(&c.MonnifySecretKey, "monnify-secret-key", c.MonnifySecretKey, "Monnify secret key")
	fs.StringVar(&c.MonnifyContractCode, "monnify-contract-code", c.MonnifyContractCode, "Monnify contract code")
	fs.StringVar(&c.AppURL, "app-url", c.AppURL, "Public app url for checkout redirects")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Redis url for shared rate limits")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "Comma separated kafka brokers")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka topic for wallet events")
	fs.StringVar(&c.FeeScheduleFile, "fee-schedule", c.FeeScheduleFile, "YAML file with fee tiers")
	fs.StringVar(&c.DepositMin, "deposit-min", c.DepositMin, "Minimum deposit amount")
	fs.StringVar(&c.DepositMax, "deposit-max", c.DepositMax, "Maximum deposit amount")

	return fs.Parse(args)
}

// Validate checks required secrets. They are never defaulted
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database uri is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.MonnifyAPIKey == "" || c.MonnifySecretKey == "" || c.MonnifyContractCode == "" {
		errs = append(errs, errors.New("monnify api key, secret key and contract code are required"))
	}
	if _, _, err := c.DepositLimits(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) DepositLimits() (decimal.Decimal, decimal.Decimal, error) {
	minAmount, err := decimal.NewFromString(c.DepositMin)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid deposit min %q: %w", c.DepositMin, err)
	}
	maxAmount, err := decimal.NewFromString(c.DepositMax)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid deposit max %q: %w", c.DepositMax, err)
	}
	return minAmount, maxAmount, nil
}

func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
