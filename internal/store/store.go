package store

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/shinyyama/dm-api/internal/config"
	"github.com/shinyyama/dm-api/internal/db"
	"github.com/shinyyama/dm-api/internal/repository"
	"github.com/shinyyama/dm-api/internal/repository/dynamo"
)

// Open connects the record store selected by STORE_DRIVER. When initSchema is
// set the store's Init runs too: schema validation for DynamoDB (unless
// SKIP_SCHEMA_VALIDATION) and auto-migration for the gorm drivers.
func Open(ctx context.Context, cfg *config.Config, initSchema bool) (repository.MessageRepository, error) {
	var repo repository.MessageRepository

	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamo.New(&awsCfg, cfg.DynamoTable, dynamoOptions(cfg)...)
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect dynamodb: %w", err)
		}
		repo = client
		if cfg.SkipSchemaValidation {
			initSchema = false
		}
	case config.DriverMySQL, config.DriverSQLite:
		gdb, err := db.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.StoreDriver, err)
		}
		repo = repository.NewMessageRepository(gdb)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if initSchema {
		if err := repo.Init(ctx); err != nil {
			return nil, fmt.Errorf("init %s store: %w", cfg.StoreDriver, err)
		}
	}
	return repo, nil
}

func dynamoOptions(cfg *config.Config) []dynamo.Option {
	var opts []dynamo.Option
	if cfg.DynamoEndpoint != "" {
		opts = append(opts, dynamo.WithEndpoint(cfg.DynamoEndpoint))
	}
	return opts
}
