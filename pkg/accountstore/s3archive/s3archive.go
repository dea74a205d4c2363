// Package s3archive is a cold-retention account storage backend: a
// lower-priority mirror that answers Get for accounts the live backend has
// since evicted. It never accepts writes through the Backend interface;
// Archive is the only way data lands here.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
)

const defaultPriority = -10

// Config configures the S3 archival backend.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Store implements accountstore.Backend as a read-mostly S3 archive.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	mu      sync.Mutex
	watchCh chan accountstore.Change
}

// New builds an S3 client from cfg and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %q: %w", cfg.Bucket, err)
	}

	logger.Info("s3 account archive ready", "bucket", cfg.Bucket)

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		watchCh:   make(chan accountstore.Change, 16),
	}, nil
}

func (s *Store) Priority() int       { return defaultPriority }
func (s *Store) Name() string        { return "s3-archive" }
func (s *Store) Description() string { return "S3 cold-retention archive for disabled accounts" }
func (s *Store) Provider() string {
	return "org.example.DispatchClient.AccountStore.S3Archive"
}
func (s *Store) Watch() <-chan accountstore.Change { return s.watchCh }

func (s *Store) objectKey(accountID string) string {
	return s.keyPrefix + accountID + ".json"
}

func (s *Store) Get(ctx context.Context, accountID, key string) (string, bool, error) {
	params, ok, err := s.load(ctx, accountID)
	if err != nil || !ok {
		return "", false, err
	}
	val, ok := params[key]
	return val, ok, nil
}

// Set is always rejected: archival accounts are written only through
// Archive, never through the live Backend write path.
func (s *Store) Set(ctx context.Context, accountID, key, value string) error {
	return accountstore.ErrReadOnlyBackend
}

func (s *Store) Delete(ctx context.Context, accountID, key string) error {
	return accountstore.ErrReadOnlyBackend
}

func (s *Store) Commit(ctx context.Context, accountID string) error {
	return accountstore.ErrReadOnlyBackend
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list archived accounts: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			id := strings.TrimPrefix(*obj.Key, s.keyPrefix)
			id = strings.TrimSuffix(id, ".json")
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) Ready(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// Archive snapshots an account's full parameter set into the archive. It is
// called by the account lifecycle when an account is disabled, not through
// the Backend interface.
func (s *Store) Archive(ctx context.Context, accountID string, params map[string]string) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal account params: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(accountID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive account %q: %w", accountID, err)
	}

	s.notify(accountID, accountstore.EventToggled)
	return nil
}

func (s *Store) load(ctx context.Context, accountID string) (map[string]string, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(accountID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get archived account %q: %w", accountID, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read archived account %q: %w", accountID, err)
	}

	var params map[string]string
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, false, fmt.Errorf("decode archived account %q: %w", accountID, err)
	}
	return params, true, nil
}

func (s *Store) notify(accountID string, ev accountstore.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.watchCh <- accountstore.Change{AccountID: accountID, Event: ev}:
	default:
	}
}
