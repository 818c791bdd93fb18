// Package blobput implements the single-shot upload adapter for the managed
// blob host: one authenticated PUT, one public URL back. No chunking; a
// failed call is terminal and the caller retries the whole call.
package blobput

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/storage"
)

// ObjectPutAdapter talks to the managed blob host over its bare
// PUT/DELETE surface with a bearer token.
type ObjectPutAdapter struct {
	baseURL    string
	publicBase string
	token      string
	client     *http.Client
	logger     logging.Logger
	now        func() time.Time
}

func New(baseURL, publicBase, token string, logger logging.Logger) *ObjectPutAdapter {
	return &ObjectPutAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicBase: strings.TrimRight(publicBase, "/"),
		token:      token,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("module", "blobput"),
		now:        time.Now,
	}
}

// Upload issues one write call and returns the public URL on success.
func (a *ObjectPutAdapter) Upload(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	if req.Grant.Expired(a.now()) {
		return nil, common.ErrGrantExpired
	}
	if req.Key == "" {
		return nil, fmt.Errorf("%w: empty destination key", common.ErrValidation)
	}

	total := int64(len(req.Bytes))
	req.ReportProgress(0, total)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, a.objectURL(req.Key), bytes.NewReader(req.Bytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", req.MimeType)
	httpReq.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("blob put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("blob put failed: %s; body: %s", resp.Status, string(b))
	}

	req.ReportProgress(total, total)

	return &storage.UploadResult{
		Backend: models.BackendNeon,
		Key:     req.Key,
		URL:     a.publicBase + "/" + req.Key,
		Size:    total,
	}, nil
}

// Delete removes the object. A 404 means the object is already gone, which
// counts as success so re-invoked cleanup stays idempotent.
func (a *ObjectPutAdapter) Delete(ctx context.Context, key string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.objectURL(key), nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("blob delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("blob delete failed: %s; body: %s", resp.Status, string(b))
	}
	return true, nil
}

func (a *ObjectPutAdapter) objectURL(key string) string {
	return a.baseURL + "/store/" + key
}
