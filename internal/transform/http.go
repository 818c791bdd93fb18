package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTransformer calls the resizer service: one POST with the source
// image, a JSON document with the three variants back.
type HTTPTransformer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPTransformer(endpoint string) *HTTPTransformer {
	return &HTTPTransformer{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type wireVariant struct {
	Bytes    []byte `json:"bytes"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type wireVariantSet struct {
	Original wireVariant `json:"original"`
	Display  wireVariant `json:"display"`
	Thumb    wireVariant `json:"thumb"`
}

func (t *HTTPTransformer) Transform(ctx context.Context, imageBytes []byte, mimeType string) (*VariantSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/transform", bytes.NewReader(imageBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("transform failed: %s; body: %s", resp.Status, string(b))
	}

	var wire wireVariantSet
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode transform result: %w", err)
	}

	return &VariantSet{
		Original: Variant(wire.Original),
		Display:  Variant(wire.Display),
		Thumb:    Variant(wire.Thumb),
	}, nil
}
