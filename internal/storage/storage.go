// Package storage uploads media attachments to an S3-compatible bucket
// so the gateway can fetch them by public URL when sending.
package storage

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service provides media file storage
type Service struct {
	s3Client *s3.S3
	bucket   string
	baseURL  string
}

// NewService creates a storage service from S3_* environment variables.
func NewService() (*Service, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	accessKey := os.Getenv("S3_ACCESS_KEY")
	secretKey := os.Getenv("S3_SECRET_KEY")
	bucket := os.Getenv("S3_BUCKET")

	if accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("S3 configuration missing")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(endpoint),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	baseURL := os.Getenv("S3_PUBLIC_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s", bucket)
	}

	return &Service{
		s3Client: s3.New(sess),
		bucket:   bucket,
		baseURL:  baseURL,
	}, nil
}

// Upload is the result of one media upload.
type Upload struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// UploadMedia stores an uploaded file under media/<uuid><ext> and
// returns its public URL. Content type is sniffed from the first bytes.
func (s *Service) UploadMedia(fileHeader *multipart.FileHeader) (*Upload, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to read file for content type detection: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind uploaded file: %w", err)
	}
	contentType := http.DetectContentType(buffer[:n])

	ext := filepath.Ext(fileHeader.Filename)
	key := fmt.Sprintf("media/%s%s", uuid.New().String(), ext)

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	publicURL := fmt.Sprintf("%s/%s", s.baseURL, key)
	log.Info().Str("key", key).Str("content_type", contentType).Msg("Media uploaded")

	return &Upload{URL: publicURL, Key: key, ContentType: contentType}, nil
}

// DeleteFile removes an object from the bucket.
func (s *Service) DeleteFile(key string) error {
	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}
