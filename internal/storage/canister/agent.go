package canister

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CallError is a canister-side Err result or a gateway-level failure.
// Code follows HTTP conventions: 5xx and 429 are transient, the rest are
// terminal for the call.
type CallError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CallError) Error() string {
	return fmt.Sprintf("canister call failed (code %d): %s", e.Code, e.Message)
}

// Transient reports whether the call may be retried with the same payload.
func (e *CallError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// HTTPAgent implements Actor over the gateway's signed JSON envelope:
// POST /api/v1/canister/{id}/call with the method name, a base64 argument
// blob and an ed25519 signature over both. Responses are tagged
// {"Ok": ...} or {"Err": {...}}.
type HTTPAgent struct {
	gatewayURL string
	canisterID string
	identity   *Identity
	client     *http.Client
}

func NewHTTPAgent(gatewayURL, canisterID string, identity *Identity) *HTTPAgent {
	return &HTTPAgent{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		canisterID: canisterID,
		identity:   identity,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type callEnvelope struct {
	Method    string `json:"method"`
	Arg       string `json:"arg"`
	Sender    string `json:"sender"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type callReply struct {
	Ok  json.RawMessage `json:"Ok"`
	Err *CallError      `json:"Err"`
}

// call executes one signed actor call and decodes the Ok branch into out
// (when out is non-nil).
func (a *HTTPAgent) call(ctx context.Context, method string, arg any, out any) error {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encode arg: %w", err)
	}
	argB64 := base64.StdEncoding.EncodeToString(argJSON)

	sig := a.identity.Sign([]byte(method + "." + argB64))

	envelope := callEnvelope{
		Method:    method,
		Arg:       argB64,
		Sender:    a.identity.Principal(),
		PublicKey: base64.StdEncoding.EncodeToString(a.identity.PublicKey()),
		Signature: base64.StdEncoding.EncodeToString(sig),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/canister/%s/call", a.gatewayURL, a.canisterID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return &CallError{Code: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &CallError{Code: resp.StatusCode, Message: string(b)}
	}

	var reply callReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if reply.Err != nil {
		return reply.Err
	}
	if out != nil {
		if err := json.Unmarshal(reply.Ok, out); err != nil {
			return fmt.Errorf("decode ok value: %w", err)
		}
	}
	return nil
}

type beginArg struct {
	Capsule        string     `json:"capsule"`
	Meta           MemoryMeta `json:"meta"`
	ExpectedChunks int        `json:"expected_chunks"`
	IdempotencyKey string     `json:"idem"`
}

func (a *HTTPAgent) UploadsBegin(ctx context.Context, capsule string, meta MemoryMeta, expectedChunks int, idempotencyKey string) (string, error) {
	var sessionID string
	err := a.call(ctx, "uploads_begin", beginArg{
		Capsule:        capsule,
		Meta:           meta,
		ExpectedChunks: expectedChunks,
		IdempotencyKey: idempotencyKey,
	}, &sessionID)
	return sessionID, err
}

type putChunkArg struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Bytes     []byte `json:"bytes"`
}

func (a *HTTPAgent) UploadsPutChunk(ctx context.Context, sessionID string, index int, chunk []byte) error {
	return a.call(ctx, "uploads_put_chunk", putChunkArg{
		SessionID: sessionID,
		Index:     index,
		Bytes:     chunk,
	}, nil)
}

type finishArg struct {
	SessionID string `json:"session_id"`
	Hash      []byte `json:"hash"`
	TotalSize int64  `json:"total_size"`
}

func (a *HTTPAgent) UploadsFinish(ctx context.Context, sessionID string, sha256Hash []byte, totalSize int64) (string, error) {
	var memoryID string
	err := a.call(ctx, "uploads_finish", finishArg{
		SessionID: sessionID,
		Hash:      sha256Hash,
		TotalSize: totalSize,
	}, &memoryID)
	return memoryID, err
}

type abortArg struct {
	SessionID string `json:"session_id"`
}

func (a *HTTPAgent) UploadsAbort(ctx context.Context, sessionID string) error {
	return a.call(ctx, "uploads_abort", abortArg{SessionID: sessionID}, nil)
}

type createArg struct {
	Capsule        string       `json:"capsule"`
	Data           InlineMemory `json:"data"`
	IdempotencyKey string       `json:"idem"`
}

func (a *HTTPAgent) MemoriesCreate(ctx context.Context, capsule string, data InlineMemory, idempotencyKey string) (string, error) {
	var memoryID string
	err := a.call(ctx, "memories_create", createArg{
		Capsule:        capsule,
		Data:           data,
		IdempotencyKey: idempotencyKey,
	}, &memoryID)
	return memoryID, err
}

type deleteArg struct {
	MemoryID string `json:"memory_id"`
}

func (a *HTTPAgent) MemoriesDelete(ctx context.Context, memoryID string) error {
	return a.call(ctx, "memories_delete", deleteArg{MemoryID: memoryID}, nil)
}
