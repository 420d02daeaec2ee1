// Package services implements the upload API's business logic: presigned
// object storage access and upload record lifecycle.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/dbx"
	sc "github.com/altchat/composer/internal/server/config"
	"github.com/altchat/composer/internal/server/models"
	"github.com/altchat/composer/internal/server/shared/db"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}

	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in, optFns...)
	}
)

type UploadService struct {
	db     *sql.DB
	repos  db.RepositoryManager
	config *sc.Config
}

func NewUploadService(conn *sql.DB, repos db.RepositoryManager, config *sc.Config) *UploadService {
	return &UploadService{
		db:     conn,
		repos:  repos,
		config: config,
	}
}

// GetRandomStorageKey builds a collision-free object key that keeps the
// original file name as the last path element.
func GetRandomStorageKey(name string) string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%d/%d/%v/%s", d.Year(), d.Month(), d.Day(), uuid.New(), path.Base(name))
}

func (s *UploadService) getS3Client() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return client, nil
}

func (s *UploadService) getPresignedPutURL(ctx context.Context, key string) (string, error) {
	client, err := s.getS3Client()
	if err != nil {
		return "", err
	}
	presignClient := newS3PresignClient(client)

	bucket := s.config.S3Bucket

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// PublicURL returns the address a confirmed upload is served from.
func (s *UploadService) PublicURL(upload *models.Upload) string {
	return strings.TrimSuffix(s.config.PublicBaseURL, "/") + "/" + upload.StorageKey
}

// storageKeyFromURL reverses PublicURL. Foreign URLs map to ErrorNotFound.
func (s *UploadService) storageKeyFromURL(assetURL string) (string, error) {
	prefix := strings.TrimSuffix(s.config.PublicBaseURL, "/") + "/"
	if !strings.HasPrefix(assetURL, prefix) {
		return "", fmt.Errorf("unknown asset url %q: %w", assetURL, common.ErrorNotFound)
	}
	return strings.TrimPrefix(assetURL, prefix), nil
}

// CreateUpload registers a pending upload and returns it together with a
// presigned PUT URL the client uploads the payload to.
func (s *UploadService) CreateUpload(ctx context.Context, userID, name, contentType string, size int64, kind string) (*models.Upload, string, error) {
	upload := &models.Upload{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Kind:        kind,
		StorageKey:  GetRandomStorageKey(name),
		Status:      models.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	putURL, err := s.getPresignedPutURL(ctx, upload.StorageKey)
	if err != nil {
		return nil, "", fmt.Errorf("error presigning upload: %w", err)
	}

	if err := s.repos.Uploads(s.db).Create(ctx, upload); err != nil {
		return nil, "", fmt.Errorf("error creating upload: %w", err)
	}

	return upload, putURL, nil
}

// ConfirmUpload marks a pending upload as completed and returns the final
// record.
func (s *UploadService) ConfirmUpload(ctx context.Context, userID, id string) (*models.Upload, error) {
	var upload *models.Upload

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Uploads(tx)
		if err := repo.MarkCompleted(ctx, id, userID); err != nil {
			return err
		}
		u, err := repo.GetByID(ctx, id, userID)
		if err != nil {
			return err
		}
		upload = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error confirming upload: %w", err)
	}

	return upload, nil
}

// DeleteUpload removes the stored object and its record, addressed by the
// asset's public URL.
func (s *UploadService) DeleteUpload(ctx context.Context, userID, assetURL string) error {
	key, err := s.storageKeyFromURL(assetURL)
	if err != nil {
		return err
	}

	client, err := s.getS3Client()
	if err != nil {
		return fmt.Errorf("error creating s3 client: %w", err)
	}

	bucket := s.config.S3Bucket
	if _, err := deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}); err != nil {
		return fmt.Errorf("error deleting object: %w", err)
	}

	if err := s.repos.Uploads(s.db).DeleteByStorageKey(ctx, key, userID); err != nil {
		return fmt.Errorf("error deleting upload: %w", err)
	}

	return nil
}

// PurgeStale removes pending uploads older than maxAge together with any
// objects already stored under their keys. Returns how many records were
// purged.
func (s *UploadService) PurgeStale(ctx context.Context, maxAge time.Duration) (int, error) {
	repo := s.repos.Uploads(s.db)

	keys, err := repo.SelectStalePending(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("error selecting stale uploads: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	client, err := s.getS3Client()
	if err != nil {
		return 0, fmt.Errorf("error creating s3 client: %w", err)
	}

	bucket := s.config.S3Bucket
	for _, key := range keys {
		// The object may never have been uploaded; S3 deletes are
		// idempotent either way.
		if _, err := deleteObject(client, ctx, &s3.DeleteObjectInput{
			Bucket: &bucket,
			Key:    &key,
		}); err != nil {
			return 0, fmt.Errorf("error deleting object %s: %w", key, err)
		}
	}

	if err := repo.DeleteByStorageKeys(ctx, keys); err != nil {
		return 0, fmt.Errorf("error deleting stale uploads: %w", err)
	}

	return len(keys), nil
}
