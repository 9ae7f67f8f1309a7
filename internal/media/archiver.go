// Package media archives inbound WhatsApp attachments to S3 so the dashboard
// can show them after the provider's short-lived media URLs expire.
package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Downloader fetches a provider media URL. The twilio adapter implements it
// since Twilio media endpoints require the account's basic auth.
type Downloader interface {
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// Config holds S3 settings for the archiver.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Archiver copies inbound attachments into a tenant-keyed S3 object.
type Archiver struct {
	client     *s3.Client
	bucket     string
	downloader Downloader
}

// NewArchiver builds an archiver. Returns nil (archiving disabled) when the
// bucket or credentials are not configured; the pipeline treats a nil
// archiver as "skip".
func NewArchiver(cfg Config, downloader Downloader) *Archiver {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		log.Info().Msg("S3 not configured, media archiving disabled")
		return nil
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().Str("bucket", cfg.Bucket).Str("region", cfg.Region).Msg("S3 media archiver initialized")
	return &Archiver{client: client, bucket: cfg.Bucket, downloader: downloader}
}

// Archive downloads the attachment and stores it under
// <building>/<conversation>/<external id>. Returns the object key.
func (a *Archiver) Archive(ctx context.Context, buildingID, conversationID, externalID, mediaURL string) (string, error) {
	data, contentType, err := a.downloader.DownloadMedia(ctx, mediaURL)
	if err != nil {
		return "", fmt.Errorf("media fetch failed: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s", buildingID, conversationID, externalID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Inbound media archived")
	return key, nil
}
