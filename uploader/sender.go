package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/rudderlabs/rudder-eventcore/uploaderrors"
)

// HttpSender is the collaborator the Uploader's retry loop calls into (spec
// §4.5 "invokes the HTTP sender"). Implementations never retry internally —
// classification and retry policy both live in the Uploader/BackoffPolicy.
type HttpSender interface {
	// Send delivers payload (one closed batch's bytes) with the given
	// headers merged into the request, returning a classified Result.
	Send(ctx context.Context, payload []byte, headers map[string]string) uploaderrors.Result
	// SetAnonymousID updates the AnonymousId header value sent with every
	// subsequent request (spec §6 wire format). Only the Uploader's worker
	// goroutine calls this (spec §5 "only the worker touches it").
	SetAnonymousID(anonymousID string)
}

// HTTPSenderConfig configures DefaultHTTPSender.
type HTTPSenderConfig struct {
	DataPlaneURL string
	WriteKey     string
	GzipEnabled  bool
	Client       *http.Client
}

// DefaultHTTPSender POSTs batches to <dataPlaneUrl>/v1/batch per spec §6,
// optionally gzip-compressing the body with klauspost/compress/gzip (a
// faster drop-in for compress/gzip, grounded on szibis-metrics-governor's
// go.mod which requires klauspost/compress directly).
type DefaultHTTPSender struct {
	cfg         HTTPSenderConfig
	anonymousID string
}

// NewDefaultHTTPSender returns an HttpSender POSTing to cfg.DataPlaneURL.
func NewDefaultHTTPSender(cfg HTTPSenderConfig) *DefaultHTTPSender {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &DefaultHTTPSender{cfg: cfg}
}

func (s *DefaultHTTPSender) SetAnonymousID(anonymousID string) {
	s.anonymousID = anonymousID
}

func (s *DefaultHTTPSender) Send(ctx context.Context, payload []byte, headers map[string]string) uploaderrors.Result {
	body := payload
	encoding := ""
	if s.cfg.GzipEnabled {
		compressed, err := gzipCompress(payload)
		if err != nil {
			return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorUnknown})
		}
		body = compressed
		encoding = "gzip"
	}

	endpoint, err := url.JoinPath(s.cfg.DataPlaneURL, "v1", "batch")
	if err != nil {
		return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorUnknown})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorUnknown})
	}

	req.SetBasicAuth(s.cfg.WriteKey, "")
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	anonymousID := s.anonymousID
	if anonymousID == "" {
		anonymousID = uuid.NewString()
	}
	req.Header.Set("AnonymousId", base64.StdEncoding.EncodeToString([]byte(anonymousID)))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	result := uploaderrors.ClassifyStatus(resp.StatusCode)
	if result.Success {
		result.ResponseBody = string(respBody)
	}
	return result
}

func gzipCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// classifyTransportError maps a net/http transport error onto the
// RetryAble sub-taxonomy of spec §6: DNS/no-connectivity, timeout, or
// unknown.
func classifyTransportError(err error) uploaderrors.Result {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorTimeout})
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorNetworkUnavailable})
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorNetworkUnavailable})
	}
	return uploaderrors.RetryAble(uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorUnknown})
}
