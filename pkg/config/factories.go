package config

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsRetry "github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittosync/internal/logger"
	badgerIndex "github.com/marmos91/dittosync/pkg/index/badger"
	"github.com/marmos91/dittosync/pkg/index/memory"
	"github.com/marmos91/dittosync/pkg/remote"
	remoteFs "github.com/marmos91/dittosync/pkg/remote/fs"
	remoteS3 "github.com/marmos91/dittosync/pkg/remote/s3"
	"github.com/marmos91/dittosync/pkg/retry"
)

// CreateIndex creates the live metadata index based on configuration.
//
// This factory function uses the Type field to determine which backing to
// use, then decodes the type-specific configuration from the corresponding
// map and passes it to the implementation's constructor.
//
// Supported types:
//   - "memory": Uses pkg/index/memory (in-memory, ephemeral)
//   - "badger": Uses pkg/index/memory seeded from and write-through to a
//     BadgerDB catalog (pkg/index/badger), so the catalog survives restarts
//
// Returns:
//   - *memory.Index: Initialized live index
//   - io.Closer: Backing catalog to close on shutdown (nil for memory type)
//   - error: Configuration or initialization error
func CreateIndex(ctx context.Context, cfg *IndexConfig) (*memory.Index, io.Closer, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	switch cfg.Type {
	case "memory":
		return memory.New(), nil, nil
	case "badger":
		return createBadgerIndex(cfg.Badger)
	default:
		return nil, nil, fmt.Errorf("unknown index type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerIndex opens the persisted catalog and seeds a live index from it.
func createBadgerIndex(options map[string]any) (*memory.Index, io.Closer, error) {
	type BadgerIndexOptions struct {
		Dir      string `mapstructure:"dir"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var opts BadgerIndexOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, nil, fmt.Errorf("failed to decode badger index options: %w", err)
	}

	catalog, err := badgerIndex.Open(badgerIndex.Options{
		Dir:      opts.Dir,
		InMemory: opts.InMemory,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open badger catalog: %w", err)
	}

	seed, err := catalog.All()
	if err != nil {
		catalog.Close()
		return nil, nil, fmt.Errorf("failed to load badger catalog: %w", err)
	}

	logger.Info("badger catalog opened: dir=%s, items=%d", opts.Dir, len(seed))
	return memory.NewPersistent(catalog, seed), catalog, nil
}

// CreateCoordinator creates a remote coordinator based on configuration.
//
// Supported types:
//   - "filesystem": Uses pkg/remote/fs (local directory standing in for the
//     synchronized container)
//   - "s3": Uses pkg/remote/s3 (Amazon S3 or compatible storage with a local
//     mirror directory)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Remote coordinator configuration
//   - engineCfg: Engine settings reused for transfer retry bounds
//   - pub: Live index the coordinator publishes item transitions into
//
// Returns:
//   - remote.Coordinator: Initialized coordinator
//   - error: Configuration or initialization error
func CreateCoordinator(ctx context.Context, cfg *RemoteConfig, engineCfg *EngineConfig, pub remoteS3.StatusPublisher) (remote.Coordinator, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemCoordinator(cfg.Filesystem, pub)
	case "s3":
		return createS3Coordinator(ctx, cfg.S3, engineCfg, pub)
	default:
		return nil, fmt.Errorf("unknown remote type: %q (supported: filesystem, s3)", cfg.Type)
	}
}

// createFilesystemCoordinator creates a local-directory coordinator.
func createFilesystemCoordinator(options map[string]any, pub remoteS3.StatusPublisher) (remote.Coordinator, error) {
	type FilesystemCoordinatorConfig struct {
		Root string `mapstructure:"root"`
	}

	var storeCfg FilesystemCoordinatorConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem remote config: %w", err)
	}

	if storeCfg.Root == "" {
		return nil, fmt.Errorf("filesystem remote: root is required")
	}

	store, err := remoteFs.New(storeCfg.Root, pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem coordinator: %w", err)
	}

	return store, nil
}

// createS3Coordinator creates an S3-backed coordinator.
func createS3Coordinator(ctx context.Context, options map[string]any, engineCfg *EngineConfig, pub remoteS3.StatusPublisher) (remote.Coordinator, error) {
	type S3CoordinatorConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		MirrorDir       string `mapstructure:"mirror_dir"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3CoordinatorConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 remote config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 remote: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 remote: region is required")
	}
	if storeCfg.MirrorDir == "" {
		return nil, fmt.Errorf("S3 remote: mirror_dir is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Configure retries for better resilience against temporary S3 failures
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return awsRetry.NewStandard(func(o *awsRetry.StandardOptions) {
			o.MaxAttempts = maxRetries // Retry for transient errors (502, 503, timeouts, etc.)
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
		// Force path-style addressing for compatibility with MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Coordinator
	// ========================================================================

	store, err := remoteS3.New(ctx, remoteS3.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		MirrorDir: storeCfg.MirrorDir,
		Publisher: pub,
		Backoff: retry.Backoff{
			Initial:    engineCfg.Backoff.Initial,
			Max:        engineCfg.Backoff.Max,
			Multiplier: engineCfg.Backoff.Multiplier,
			Jitter:     engineCfg.Backoff.Jitter,
		},
		MaxAttempts: engineCfg.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 coordinator: %w", err)
	}

	logger.Info("S3 coordinator initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
