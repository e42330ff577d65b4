package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
)

const (
	DriverDynamoDB = "dynamodb"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	GitSHA   string `env:"GIT_SHA" envDefault:"dev"`
	Build    string `env:"BUILD_TIME"`

	StoreDriver          string `env:"STORE_DRIVER" envDefault:"dynamodb"`
	SkipSchemaValidation bool   `env:"SKIP_SCHEMA_VALIDATION" envDefault:"false"`
	AllocatorMaxRetries  int    `env:"ALLOCATOR_MAX_RETRIES" envDefault:"5"`

	DynamoTable    string `env:"DYNAMO_TABLE" envDefault:"Messages"`
	DynamoEndpoint string `env:"DYNAMO_ENDPOINT"` // e.g. http://localhost:8000 for DynamoDB Local
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`

	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"messages.db"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverDynamoDB:
		if c.DynamoTable == "" {
			return fmt.Errorf("DYNAMO_TABLE is required for driver %s", c.StoreDriver)
		}
	case DriverMySQL:
		if c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("DB_USER and DB_NAME are required for driver %s", c.StoreDriver)
		}
		if c.DBHost == "" && c.InstanceConnectionName == "" {
			return fmt.Errorf("DB_HOST or INSTANCE_CONNECTION_NAME is required for driver %s", c.StoreDriver)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for driver %s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AllocatorMaxRetries < 0 {
		return fmt.Errorf("ALLOCATOR_MAX_RETRIES must not be negative")
	}
	return nil
}
