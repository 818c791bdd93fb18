// Package s3multi implements the presigned upload adapter for S3-compatible
// storage. Small payloads go through one presigned PUT; payloads above the
// part size use multipart with per-part presigned URLs, so bytes never pass
// through the application server. "URL issued" and "bytes durably stored"
// are distinct states: the adapter only reports success after the physical
// transfer (and, for multipart, the completion call) is confirmed.
package s3multi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Seams for testing the AWS SDK calls.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignUploadPart = func(pc *s3.PresignClient, ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignUploadPart(ctx, in, optFns...)
	}

	createMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
		return c.CreateMultipartUpload(ctx, in)
	}
	completeMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
		return c.CompleteMultipartUpload(ctx, in)
	}
	abortMultipartUpload = func(c *s3.Client, ctx context.Context, in *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
		return c.AbortMultipartUpload(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
)

// Config holds connection settings for the S3-compatible endpoint.
type Config struct {
	Region       string
	RootUser     string
	RootPassword string
	Bucket       string
	BaseEndpoint string
	PublicBase   string
}

// MultipartAdapter implements storage.Adapter over presigned S3 transfers.
type MultipartAdapter struct {
	cfg        Config
	partSize   int64
	httpClient *http.Client
	logger     logging.Logger
	now        func() time.Time
}

func New(cfg Config, partSize int64, logger logging.Logger) *MultipartAdapter {
	return &MultipartAdapter{
		cfg:        cfg,
		partSize:   partSize,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger.With("module", "s3multi"),
		now:        time.Now,
	}
}

func (a *MultipartAdapter) newClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(a.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.cfg.RootUser,
			a.cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.cfg.BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Upload transfers the payload and returns only after the bytes are
// durably stored.
func (a *MultipartAdapter) Upload(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	if req.Grant.Expired(a.now()) {
		return nil, common.ErrGrantExpired
	}
	if req.Key == "" {
		return nil, fmt.Errorf("%w: empty destination key", common.ErrValidation)
	}

	client, err := a.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	total := int64(len(req.Bytes))
	req.ReportProgress(0, total)

	if total <= a.partSize {
		if err := a.putSingle(ctx, client, req); err != nil {
			return nil, err
		}
	} else {
		if err := a.putMultipart(ctx, client, req); err != nil {
			return nil, err
		}
	}

	req.ReportProgress(total, total)

	return &storage.UploadResult{
		Backend: models.BackendNeon,
		Key:     req.Key,
		URL:     a.cfg.PublicBase + "/" + req.Key,
		Size:    total,
	}, nil
}

func (a *MultipartAdapter) putSingle(ctx context.Context, client *s3.Client, req storage.UploadRequest) error {
	presignClient := newS3PresignClient(client)

	presigned, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(req.Key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return fmt.Errorf("presign put: %w", err)
	}

	return a.putURL(ctx, presigned.URL, req.Bytes, req.MimeType)
}

func (a *MultipartAdapter) putMultipart(ctx context.Context, client *s3.Client, req storage.UploadRequest) error {
	created, err := createMultipartUpload(client, ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(req.Key),
		ContentType: aws.String(req.MimeType),
	})
	if err != nil {
		return fmt.Errorf("create multipart: %w", err)
	}
	uploadID := created.UploadId

	presignClient := newS3PresignClient(client)
	total := int64(len(req.Bytes))

	var completed []types.CompletedPart
	var sent int64
	for partNumber := int32(1); sent < total; partNumber++ {
		end := sent + a.partSize
		if end > total {
			end = total
		}
		part := req.Bytes[sent:end]

		presigned, err := presignUploadPart(presignClient, ctx, &s3.UploadPartInput{
			Bucket:     aws.String(a.cfg.Bucket),
			Key:        aws.String(req.Key),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
		}, s3.WithPresignExpires(15*time.Minute))
		if err != nil {
			a.abort(ctx, client, req.Key, uploadID)
			return fmt.Errorf("presign part %d: %w", partNumber, err)
		}

		etag, err := a.putPartURL(ctx, presigned.URL, part, req.MimeType)
		if err != nil {
			a.abort(ctx, client, req.Key, uploadID)
			return fmt.Errorf("upload part %d: %w", partNumber, err)
		}

		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(partNumber),
		})

		sent = end
		req.ReportProgress(sent, total)
	}

	_, err = completeMultipartUpload(client, ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(a.cfg.Bucket),
		Key:             aws.String(req.Key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		a.abort(ctx, client, req.Key, uploadID)
		return fmt.Errorf("complete multipart: %w", err)
	}
	return nil
}

func (a *MultipartAdapter) abort(ctx context.Context, client *s3.Client, key string, uploadID *string) {
	_, err := abortMultipartUpload(client, ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(a.cfg.Bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		a.logger.Warn(ctx, "abort multipart failed", "key", key, "error", err)
	}
}

func (a *MultipartAdapter) putURL(ctx context.Context, url string, payload []byte, mimeType string) error {
	_, err := a.putPartURL(ctx, url, payload, mimeType)
	return err
}

func (a *MultipartAdapter) putPartURL(ctx context.Context, url string, payload []byte, mimeType string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", mimeType)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return resp.Header.Get("ETag"), nil
}

// Delete removes the object. S3 delete of an absent key succeeds, which is
// exactly the idempotency cleanup needs.
func (a *MultipartAdapter) Delete(ctx context.Context, key string) (bool, error) {
	client, err := a.newClient(ctx)
	if err != nil {
		return false, fmt.Errorf("s3 client: %w", err)
	}

	_, err = deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("s3 delete: %w", err)
	}
	return true, nil
}
