package gmailapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

// DefaultBaseURL is the production Gmail REST endpoint.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// metadataHeaders are the only headers requested per message; bodies are
// never fetched.
var metadataHeaders = []string{"From", "To", "Cc", "Bcc"}

// Client is a thin HTTP client for the Gmail REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Gmail API client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MessageList is one page of message ids.
type MessageList struct {
	Messages           []MessageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

// MessageRef identifies a single message.
type MessageRef struct {
	ID string `json:"id"`
}

// MessageMeta is the metadata-format message payload: headers only.
type MessageMeta struct {
	ID      string `json:"id"`
	Payload struct {
		Headers []Header `json:"headers"`
	} `json:"payload"`
}

// Header is a single message header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderValue returns the first header with the given name, or "".
func (m *MessageMeta) HeaderValue(name string) string {
	for _, h := range m.Payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// ListMessages fetches one page of message ids. An empty pageToken
// requests the first page.
func (c *Client) ListMessages(
	ctx context.Context,
	bearerToken, pageToken string,
	pageSize int,
) (*MessageList, error) {
	url := c.baseURL + "/users/me/messages?maxResults=" + strconv.Itoa(pageSize)
	if pageToken != "" {
		url += "&pageToken=" + pageToken
	}

	var list MessageList
	if err := c.getJSON(ctx, bearerToken, url, &list); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return &list, nil
}

// GetMessageMetadata fetches a single message in metadata format,
// restricted to the address headers.
func (c *Client) GetMessageMetadata(
	ctx context.Context,
	bearerToken, messageID string,
) (*MessageMeta, error) {
	url := c.baseURL + "/users/me/messages/" + messageID + "?format=metadata"
	for _, h := range metadataHeaders {
		url += "&metadataHeaders=" + h
	}

	var meta MessageMeta
	if err := c.getJSON(ctx, bearerToken, url, &meta); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}
	return &meta, nil
}

func (c *Client) getJSON(ctx context.Context, bearerToken, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &scanner.AuthError{
			Kind:    scanner.KindGmailAPI,
			Message: fmt.Sprintf("status %d from %s", resp.StatusCode, url),
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
