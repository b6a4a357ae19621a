package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	historyPath = "/api/history"
	chatPath    = "/api/chat"
	clearPath   = "/api/clear"
	healthPath  = "/api/health"

	// maxErrorBody caps how much of an error response ends up in StatusError.
	maxErrorBody = 512
)

// HTTPClient implements Backend over the service's JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

type HTTPClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying client. The default has no timeout;
// deadlines belong to the transport or to the caller's context.
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.client = c
	}
}

func NewHTTPClient(baseURL string, options ...HTTPClientOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("base url %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("base url %q has no host", baseURL)
	}

	ret := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (h *HTTPClient) BaseURL() string {
	return h.baseURL
}

type historyResponse struct {
	Messages []conversation.Message `json:"messages"`
}

func (h *HTTPClient) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	q := url.Values{}
	q.Set("conversation_id", conversationID)

	var resp historyResponse
	if err := h.do(ctx, http.MethodGet, historyPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

type sendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type sendResponse struct {
	Response *string `json:"response"`
}

func (h *HTTPClient) Send(ctx context.Context, conversationID string, text string) (string, error) {
	var resp sendResponse
	err := h.do(ctx, http.MethodPost, chatPath, sendRequest{
		Message:        text,
		ConversationID: conversationID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Response == nil {
		return "", errors.Wrap(ErrMalformedResponse, "send: missing response field")
	}
	return *resp.Response, nil
}

type clearRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (h *HTTPClient) Clear(ctx context.Context, conversationID string) error {
	return h.do(ctx, http.MethodPost, clearPath, clearRequest{ConversationID: conversationID}, nil)
}

func (h *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	var resp HealthStatus
	if err := h.do(ctx, http.MethodGet, healthPath, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "" {
		return nil, errors.Wrap(ErrMalformedResponse, "health: missing status field")
	}
	return &resp, nil
}

// do performs one JSON round trip. out may be nil when the body is ignored.
func (h *HTTPClient) do(ctx context.Context, method string, path string, in interface{}, out interface{}) error {
	op := method + " " + strings.SplitN(path, "?", 2)[0]

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: encoding request", op)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "%s: creating request", op)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("op", op).Str("url", req.URL.String()).Msg("backend request")

	resp, err := h.client.Do(req)
	if err != nil {
		return newTransportError(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isSyntaxOrType(err) {
			return errors.Wrapf(ErrMalformedResponse, "%s: %v", op, err)
		}
		return newTransportError(op, err)
	}
	return nil
}

func isSyntaxOrType(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// errorMessage pulls {"error": "..."} out of an error body, falling back to
// the raw (truncated) text.
func errorMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(b))
}

var (
	_ Backend       = (*HTTPClient)(nil)
	_ HealthChecker = (*HTTPClient)(nil)
)
