package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	goption "google.golang.org/api/option"
)

// GmailDispatcher sends alert emails through the Gmail API on behalf of the
// configured sender account.
type GmailDispatcher struct {
	svc    *gmail.Service
	sender string
}

var _ Dispatcher = (*GmailDispatcher)(nil)

// NewGmailFromEnv creates a Gmail dispatcher using environment variables.
// Required: GMAIL_SENDER plus OAuth credentials:
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE, and
// GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE (produced by
// cmd/oauth-init).
func NewGmailFromEnv(ctx context.Context) (*GmailDispatcher, error) {
	sender := strings.TrimSpace(os.Getenv("GMAIL_SENDER"))
	if sender == "" {
		return nil, errors.New("missing GMAIL_SENDER")
	}

	clientJSON, err := readEnvOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, fmt.Errorf("oauth client credentials: %w", err)
	}
	tokenJSON, err := readEnvOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	cfg, err := google.ConfigFromJSON(clientJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	httpClient := cfg.Client(ctx, &tok)
	svc, err := gmail.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	return &GmailDispatcher{svc: svc, sender: sender}, nil
}

// SendAlert sends one alert email. Delivery failure is reported to the
// caller; the computed alert content stays valid and may be retried.
func (d *GmailDispatcher) SendAlert(ctx context.Context, notifyAddress, subject string, lines []string) error {
	if notifyAddress == "" {
		return errors.New("empty notify address")
	}

	raw := buildRawMessage(d.sender, notifyAddress, subject, BuildBody(lines, ""))
	msg := &gmail.Message{Raw: raw}

	if _, err := d.svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("send gmail message: %w", err)
	}

	slog.InfoContext(ctx, "Alert email sent",
		"notify_address", notifyAddress,
		"line_count", len(lines))

	return nil
}

// buildRawMessage assembles an RFC 2822 message and encodes it the way the
// Gmail API expects (base64url, no padding concerns handled by the encoder).
func buildRawMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func readEnvOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(os.Getenv(fileKey)); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("set %s or %s", jsonKey, fileKey)
}
