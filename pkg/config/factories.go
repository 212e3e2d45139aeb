package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/objfs/internal/logger"
	"github.com/marmos91/objfs/pkg/content"
	contentFs "github.com/marmos91/objfs/pkg/content/fs"
	contentMemory "github.com/marmos91/objfs/pkg/content/memory"
	contentS3 "github.com/marmos91/objfs/pkg/content/s3"
	"github.com/marmos91/objfs/pkg/metrics"
	"github.com/marmos91/objfs/pkg/store"
	"github.com/marmos91/objfs/pkg/store/badger"
	"github.com/marmos91/objfs/pkg/store/memory"
	"github.com/marmos91/objfs/pkg/store/mongo"
	"github.com/mitchellh/mapstructure"
)

// decodeOptions decodes a type-specific option map into out. Values coming
// from environment variables are strings, so input is weakly typed and
// durations may be written as "10s".
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

// CreateContentStore creates a content store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/content/memory (volatile)
//   - "filesystem": Uses pkg/content/fs (local filesystem storage)
//   - "s3": Uses pkg/content/s3 (Amazon S3 or compatible storage)
//
// An empty type returns a nil store: the object store then picks its own.
func CreateContentStore(ctx context.Context, cfg *ContentConfig) (content.Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return contentMemory.NewMemoryContentStore(), nil
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// createFilesystemContentStore creates a filesystem-based content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type FilesystemContentStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemContentStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	cs, err := contentFs.NewFSContentStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	return cs, nil
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type S3ContentStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3ContentStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Content Store
	// ========================================================================

	cs, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return cs, nil
}

// CreateObjectStore creates an object store based on configuration.
//
// The content store named by cfg.Content is created first and handed to
// the object store. When metrics are enabled the store is wrapped so its
// backend operations are recorded.
//
// Supported types:
//   - "memory": Uses pkg/store/memory (volatile, for tests and scratch use)
//   - "badger": Uses pkg/store/badger (embedded, persistent)
//   - "mongo": Uses pkg/store/mongo (MongoDB server)
func CreateObjectStore(ctx context.Context, cfg *StoreConfig) (store.ObjectStore, error) {
	cs, err := CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		return nil, err
	}

	var st store.ObjectStore
	switch cfg.Type {
	case "memory":
		st = memory.NewMemoryObjectStore(memory.MemoryObjectStoreConfig{Content: cs})
	case "badger":
		st, err = createBadgerObjectStore(ctx, cfg.Badger, cs)
	case "mongo":
		st, err = createMongoObjectStore(ctx, cfg.Mongo, cs)
	default:
		return nil, fmt.Errorf("unknown object store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Object store created: type=%s content=%s", cfg.Type, cfg.Content.Type)
	if metrics.IsEnabled() {
		st = metrics.InstrumentStore(st, metrics.NewStoreMetrics(cfg.Type))
	}
	return st, nil
}

// createBadgerObjectStore creates a BadgerDB object store.
func createBadgerObjectStore(ctx context.Context, options map[string]any, cs content.Store) (store.ObjectStore, error) {
	var storeCfg badger.BadgerObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger object store config: %w", err)
	}
	storeCfg.Content = cs

	st, err := badger.NewBadgerObjectStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return st, nil
}

// createMongoObjectStore creates a MongoDB object store.
func createMongoObjectStore(ctx context.Context, options map[string]any, cs content.Store) (store.ObjectStore, error) {
	var storeCfg mongo.MongoObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode mongo object store config: %w", err)
	}
	if err := validate.Struct(storeCfg); err != nil {
		return nil, fmt.Errorf("mongo object store: %w", formatValidationError(err))
	}
	storeCfg.Content = cs

	st, err := mongo.NewMongoObjectStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return st, nil
}
