package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/wire"
)

const maxResponseBody = 64 * 1024

type HTTPConfig struct {
	BaseURL string
	Client  *http.Client // defaults to a client with DefaultTimeout

	// Protobuf sends google.protobuf.Struct bodies instead of JSON.
	Protobuf bool

	Logger *zap.Logger
}

// HTTPClient talks to the attendance server's HTTP API.
type HTTPClient struct {
	baseURL  string
	client   *http.Client
	protobuf bool
	logger   *zap.Logger
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   cfg.Client,
		protobuf: cfg.Protobuf,
		logger:   cfg.Logger,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Submit implements scan.Submitter.
func (c *HTTPClient) Submit(ctx context.Context, tok token.AttendanceToken, sc scan.ScanContext) error {
	req := buildRequest(tok, sc)

	var (
		body        []byte
		contentType string
		err         error
	)
	if c.protobuf {
		body, err = proto.Marshal(wire.AttendanceRequestToStruct(req))
		contentType = "application/x-protobuf"
	} else {
		body, err = json.Marshal(req)
		contentType = "application/json"
	}
	if err != nil {
		return &scan.SubmissionError{Err: fmt.Errorf("encode request: %w", err)}
	}

	status, raw, err := c.post(ctx, "/v1/attendance", contentType, body)
	if err != nil {
		return &scan.SubmissionError{Err: err}
	}

	switch status {
	case http.StatusOK, http.StatusForbidden:
		resp, err := c.decodeAttendance(raw)
		if err != nil {
			return &scan.SubmissionError{Err: err}
		}
		c.logger.Debug("attendance submitted",
			zap.Int("status", status),
			zap.Bool("accepted", resp.Accepted),
			zap.String("reason", resp.Reason))
		return fromResponse(resp)
	case http.StatusBadRequest:
		return &scan.SubmissionError{Reason: errorCode(raw)}
	default:
		return &scan.SubmissionError{Err: fmt.Errorf("server returned %d", status)}
	}
}

// Heartbeat posts a station heartbeat as JSON.
func (c *HTTPClient) Heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	status, raw, err := c.post(ctx, "/v1/heartbeat", "application/json", body)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if status != http.StatusOK {
		return types.HeartbeatResponse{}, fmt.Errorf("heartbeat: server returned %d (%s)", status, errorCode(raw))
	}
	var resp types.HeartbeatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.HeartbeatResponse{}, fmt.Errorf("heartbeat: decode response: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, path, contentType string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *HTTPClient) decodeAttendance(raw []byte) (types.AttendanceResponse, error) {
	if c.protobuf {
		var msg structpb.Struct
		if err := proto.Unmarshal(raw, &msg); err != nil {
			return types.AttendanceResponse{}, fmt.Errorf("decode response: %w", err)
		}
		return wire.AttendanceResponseFromStruct(&msg), nil
	}
	var resp types.AttendanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.AttendanceResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// errorCode extracts the "error" field of a JSON error body.
func errorCode(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return "bad_request"
	}
	return body.Error
}
