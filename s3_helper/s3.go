package s3_helper

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/utils"
	"github.com/rs/zerolog"
)

var (
	logger = gologger.NewLogger()

	sessOnce sync.Once
	sess     *session.Session
	sessErr  error
)

func getSession() (*session.Session, error) {
	sessOnce.Do(func() {
		s3Config := &aws.Config{
			Region:      aws.String(utils.AWS_DEFAULT_REGION),
			Credentials: credentials.NewEnvCredentials(),
		}
		if utils.S3_ENDPOINT != "" {
			s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		}
		sess, sessErr = session.NewSession(s3Config)
	})
	if sessErr != nil {
		return nil, fmt.Errorf("error making new session: %w", sessErr)
	}
	return sess, nil
}

// SplitPath splits "s3://bucket/key/parts" into bucket and key. An empty
// bucket falls back to S3_BUCKET_NAME.
func SplitPath(cloudPath string) (bucket, key string) {
	trimmed := strings.TrimPrefix(cloudPath, "s3://")
	trimmed = strings.TrimPrefix(trimmed, "gs://")
	if trimmed == cloudPath {
		// not a cloud path, treat as a key in the default bucket
		return utils.S3_BUCKET_NAME, strings.TrimPrefix(cloudPath, "/")
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// ReadBytesFromBucket downloads one object, used for record sources given
// as cloud paths.
func ReadBytesFromBucket(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	s3Session, err := getSession()
	if err != nil {
		return nil, err
	}

	downloader := s3manager.NewDownloader(s3Session)
	buf := &aws.WriteAtBuffer{}

	s := time.Now()
	_, err = downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("error downloading s3://%s/%s: %w", bucket, key, err)
	}

	d := time.Since(s)
	logger.Debug().Str("bucket", bucket).Str("key", key).Str("durationHuman", d.String()).Msg("downloaded object")

	return buf.Bytes(), nil
}

// WriteBytesToBucket uploads one object, used to archive submitted batch
// payloads under an audit prefix.
func WriteBytesToBucket(ctx context.Context, bucket, key string, byteStream io.Reader, contentType *string) (*s3manager.UploadOutput, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	s3Session, err := getSession()
	if err != nil {
		return nil, err
	}

	uploader := s3manager.NewUploader(s3Session)
	input := &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        byteStream,
		ContentType: contentType,
	}

	s := time.Now()
	output, err := uploader.UploadWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error uploading s3://%s/%s: %w", bucket, key, err)
	}

	d := time.Since(s)
	logger.Debug().Str("bucket", bucket).Str("key", key).Str("durationHuman", d.String()).Msg("uploaded object")

	return output, nil
}
