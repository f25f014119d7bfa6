package storage

import (
	"bytes"
	"context"
	"fmt"

	"martin-blog/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client erstellt einen S3-Client für den S3-kompatiblen Medien-Bucket
// hinter der CDN-Domain.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.MediaS3URL,
				SigningRegion:     cfg.MediaS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.MediaS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.MediaS3Key, cfg.MediaS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// UploadFile lädt eine Datei in den Bucket hoch und gibt die CDN-URL zurück.
// Die URL enthält keine Signatur-Parameter; signiert wird erst beim Ausliefern.
func UploadFile(ctx context.Context, client *s3.Client, key string, data []byte, contentType string, cfg *config.Config) (string, error) {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &cfg.MediaS3Bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", cfg.CDNDomain, key), nil
}

// DeleteFile entfernt ein Objekt aus dem Bucket; fehlende Objekte sind kein Fehler.
func DeleteFile(ctx context.Context, client *s3.Client, key string, cfg *config.Config) error {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &cfg.MediaS3Bucket,
		Key:    &key,
	})
	return err
}
