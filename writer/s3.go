package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appconfig "tickflow/config"
	"tickflow/internal/pipeline"
	"tickflow/logger"
)

// Uploader pushes parquet-encoded datasets to S3. Uploads are rate limited
// so a large universe does not hammer the endpoint.
type Uploader struct {
	config   *appconfig.Config
	s3Client *s3.Client
	limiter  *rate.Limiter
	log      *logger.Log
}

// NewUploader builds the S3 client from the storage configuration. Static
// credentials take precedence; otherwise the default AWS chain applies.
func NewUploader(ctx context.Context, cfg *appconfig.Config) (*Uploader, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_uploader").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	perSecond := cfg.Storage.S3.UploadsPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 uploader initialized")

	return &Uploader{
		config:   cfg,
		s3Client: s3Client,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		log:      log,
	}, nil
}

// UploadDataset serializes the dataset in memory and uploads it under the
// configured partition layout. Returns the object key.
func (u *Uploader) UploadDataset(ctx context.Context, ds *pipeline.Dataset) (string, error) {
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"kind": ds.Kind.String(),
		"rows": ds.Frame.NumRows(),
	})

	key := u.objectKey(ds)
	log = log.WithFields(logger.Fields{"s3_key": key})

	fw := newMemoryFileWriter()
	if err := writeRows(fw, ds, u.config.Writer.Compression); err != nil {
		return "", err
	}
	data := fw.Bytes()

	if err := u.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("upload rate limiter: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"compression":      u.config.Writer.Compression,
			"tickflow-version": u.config.Tickflow.Version,
		},
	}
	if _, err := u.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to S3 bucket %s: %w", u.config.Storage.S3.Bucket, err)
	}

	log.WithFields(logger.Fields{"file_size": len(data)}).Info("dataset uploaded")
	return key, nil
}

// objectKey renders the hive-style S3 key for a dataset. A uuid suffix keeps
// re-runs from clobbering earlier uploads.
func (u *Uploader) objectKey(ds *pipeline.Dataset) string {
	dir := partitionPath(ds, u.config)
	filename := fmt.Sprintf("%s_%s.parquet", ds.Kind.String(), uuid.NewString())
	return filepath.ToSlash(filepath.Join(dir, filename))
}
