package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/contactbook/internal/server/config"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// AvatarStore uploads avatar images to an S3-compatible bucket.
type AvatarStore struct {
	config *sc.Config
}

func NewAvatarStore(config *sc.Config) *AvatarStore {
	return &AvatarStore{config: config}
}

// AvatarKey returns a fresh object key for userID.
func AvatarKey(userID int64) string {
	d := time.Now()
	return fmt.Sprintf("users/%d/%d/%d/%v", userID, d.Year(), d.Month(), uuid.New())
}

func (s *AvatarStore) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Upload writes body under a new key and returns its public URL.
func (s *AvatarStore) Upload(ctx context.Context, userID int64, contentType string, body []byte) (string, error) {
	client, err := s.client(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := AvatarKey(userID)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", err
	}

	return strings.TrimRight(s.config.S3PublicURL, "/") + "/" + key, nil
}
