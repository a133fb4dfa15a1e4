package episodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := marshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// Delete performs a DELETE request
func (c *HTTPClient) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// marshalJSON marshals a struct to JSON
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalJSON unmarshals JSON to a struct
func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// createSession registers a session and returns the id the service
// assigned. An empty id asks the service to generate one.
func createSession(ctx context.Context, client *HTTPClient, baseURL, id string) (string, error) {
	body := map[string]string{}
	if id != "" {
		body["id"] = id
	}

	resp, err := client.Post(ctx, baseURL+"/sessions", body)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	data, err := readResponseBody(resp)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	var ack SessionAck
	if err := unmarshalJSON(data, &ack); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if ack.ID == "" {
		return "", fmt.Errorf("service returned an empty session id")
	}

	return ack.ID, nil
}

// deleteSession removes a session. Used to clean up determinism twins.
func deleteSession(ctx context.Context, client *HTTPClient, baseURL, sessionID string) error {
	resp, err := client.Delete(ctx, baseURL+"/sessions/"+sessionID)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	data, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

// submitBatch posts one batch and classifies the outcome as computed,
// duplicate, or failed.
func submitBatch(ctx context.Context, client *HTTPClient, baseURL, sessionID string, batch Batch) (Ack, string) {
	url := baseURL + "/sessions/" + sessionID + "/rewards"

	resp, err := client.Post(ctx, url, batch)
	if err != nil {
		return Ack{}, resultFailed
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return Ack{}, resultFailed
	}

	if resp.StatusCode != StatusOK {
		return Ack{}, resultFailed
	}

	var ack Ack
	if err := unmarshalJSON(body, &ack); err != nil {
		return Ack{}, resultFailed
	}
	return ack, classifyAck(ack)
}

// fetchState retrieves the normalization state snapshot for a session.
func fetchState(ctx context.Context, client *HTTPClient, baseURL, sessionID string) (StateView, error) {
	resp, err := client.Get(ctx, baseURL+"/sessions/"+sessionID+"/state")
	if err != nil {
		return StateView{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return StateView{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return StateView{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var view StateView
	if err := unmarshalJSON(body, &view); err != nil {
		return StateView{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return view, nil
}

// fetchDiagnostics retrieves up to limit diagnostics records for a
// session, newest first.
func fetchDiagnostics(ctx context.Context, client *HTTPClient, baseURL, sessionID string, limit int) ([]Diagnostic, error) {
	url := fmt.Sprintf("%s/sessions/%s/diagnostics?limit=%d", baseURL, sessionID, limit)

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var diags []Diagnostic
	if err := unmarshalJSON(body, &diags); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return diags, nil
}

// classifyAck maps an acknowledgement to a result bucket.
func classifyAck(ack Ack) string {
	switch ack.Status {
	case "computed":
		return resultComputed
	case "duplicate":
		return resultDuplicate
	default:
		return resultFailed
	}
}

// Result bucket constants.
const (
	resultComputed  = "computed"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
)

// streamConn is a single session-bound stream connection.
type streamConn struct {
	conn *websocket.Conn
}

// dialStream opens the stream for one session. The ws URL is derived
// from the HTTP base URL, so http becomes ws and https becomes wss.
func dialStream(ctx context.Context, baseURL, sessionID string) (*streamConn, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/stream/" + sessionID

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	return &streamConn{conn: conn}, nil
}

// submit sends one batch over the stream and waits for its ack. Frames
// are acknowledged in order, so the next read always matches the last
// write.
func (s *streamConn) submit(batch Batch) (Ack, string) {
	if err := s.conn.WriteJSON(batch); err != nil {
		return Ack{}, resultFailed
	}

	var ack Ack
	if err := s.conn.ReadJSON(&ack); err != nil {
		return Ack{}, resultFailed
	}
	return ack, classifyAck(ack)
}

// Close performs a clean websocket shutdown.
func (s *streamConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
