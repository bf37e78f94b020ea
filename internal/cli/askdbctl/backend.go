package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/pipeline"
)

// Reply is one assistant answer as shown in the terminal.
type Reply struct {
	Answer string
	SQL    string
	Failed bool
}

// Backend is a chat session the terminal drives, either in-process or
// through a running askdb-api.
type Backend interface {
	Transcript(ctx context.Context) ([]conversation.Turn, error)
	Connect(ctx context.Context, descriptor database.Descriptor) error
	Ask(ctx context.Context, question string) (Reply, error)
	Close(ctx context.Context) error
}

type LocalBackend struct {
	Session   *pipeline.Session
	Connector database.Connector
}

func (b *LocalBackend) Transcript(context.Context) ([]conversation.Turn, error) {
	return b.Session.Transcript(), nil
}

func (b *LocalBackend) Connect(ctx context.Context, descriptor database.Descriptor) error {
	return b.Session.Connect(ctx, b.Connector, descriptor)
}

func (b *LocalBackend) Ask(ctx context.Context, question string) (Reply, error) {
	reply, err := b.Session.Ask(ctx, question)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Answer: reply.Answer, SQL: reply.SQL, Failed: reply.Err != nil}, nil
}

func (b *LocalBackend) Close(context.Context) error {
	return b.Session.Close()
}

type RemoteBackend struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	sessionID string
}

// NewRemoteBackend opens a session on the API server at baseURL.
func NewRemoteBackend(ctx context.Context, baseURL, apiKey string, client *http.Client) (*RemoteBackend, error) {
	if client == nil {
		client = http.DefaultClient
	}
	b := &RemoteBackend{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := b.call(ctx, http.MethodPost, "/v1/sessions", nil, &created); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if created.SessionID == "" {
		return nil, fmt.Errorf("create session: empty session id")
	}
	b.sessionID = created.SessionID
	return b, nil
}

func (b *RemoteBackend) SessionID() string { return b.sessionID }

func (b *RemoteBackend) Transcript(ctx context.Context) ([]conversation.Turn, error) {
	var view struct {
		Transcript []conversation.Turn `json:"transcript"`
	}
	if err := b.call(ctx, http.MethodGet, b.sessionPath(""), nil, &view); err != nil {
		return nil, err
	}
	return view.Transcript, nil
}

func (b *RemoteBackend) Connect(ctx context.Context, descriptor database.Descriptor) error {
	return b.call(ctx, http.MethodPost, b.sessionPath("/connect"), descriptor, nil)
}

func (b *RemoteBackend) Ask(ctx context.Context, question string) (Reply, error) {
	var response struct {
		Answer string `json:"answer"`
		SQL    string `json:"sql"`
		Error  string `json:"error"`
	}
	if err := b.call(ctx, http.MethodPost, b.sessionPath("/messages"), map[string]string{"question": question}, &response); err != nil {
		return Reply{}, err
	}
	return Reply{Answer: response.Answer, SQL: response.SQL, Failed: response.Error != ""}, nil
}

func (b *RemoteBackend) Close(ctx context.Context) error {
	return b.call(ctx, http.MethodDelete, b.sessionPath(""), nil, nil)
}

func (b *RemoteBackend) sessionPath(suffix string) string {
	return "/v1/sessions/" + b.sessionID + suffix
}

func (b *RemoteBackend) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	code, responseBody, err := doRequest(ctx, b.client, method, b.baseURL+path, b.apiKey, body)
	if err != nil {
		return err
	}
	if code >= 400 {
		return apiError(code, responseBody)
	}
	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func apiError(code int, body []byte) error {
	var envelope struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
		Context   struct {
			Details string `json:"details"`
		} `json:"context"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ErrorCode == "" {
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
	}
	if envelope.Context.Details != "" {
		return fmt.Errorf("%s: %s (%s)", envelope.ErrorCode, envelope.Message, envelope.Context.Details)
	}
	return fmt.Errorf("%s: %s", envelope.ErrorCode, envelope.Message)
}
