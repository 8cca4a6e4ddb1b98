// Package notifications renders and delivers user-facing email notifications.
package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Kind names a notification variant.
type Kind string

const (
	KindPasswordRecovery Kind = "password_recovery"
	KindExample          Kind = "example"
)

// Notification is implemented only by the variants in this package.
type Notification interface {
	Kind() Kind
	Subject() string
	Body() (string, error)
	Recipients() []string
	sealed()
}

// PasswordRecovery carries a reset link to the account owner.
type PasswordRecovery struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	// BaseURL is the frontend origin; filled by the service when empty.
	BaseURL string `json:"baseUrl,omitempty"`
}

var recoveryTemplate = template.Must(template.New("recovery").Parse(`<h2>Password Recovery</h2>
<p>You have requested to reset your password. Please click the link below to set a new password:</p>
<p><a href="{{.ResetURL}}">Reset Password</a></p>
<p>This link will expire on {{.ExpiresAt}}.</p>
<p>If you did not request this password reset, please ignore this email.</p>
`))

func (PasswordRecovery) Kind() Kind { return KindPasswordRecovery }

func (PasswordRecovery) Subject() string { return "Password Recovery Request" }

func (n PasswordRecovery) Recipients() []string { return []string{n.Email} }

func (n PasswordRecovery) Body() (string, error) {
	var buf bytes.Buffer
	err := recoveryTemplate.Execute(&buf, struct {
		ResetURL  string
		ExpiresAt string
	}{
		ResetURL:  n.ResetURL(),
		ExpiresAt: n.ExpiresAt.UTC().Format("Jan 02, 2006 15:04"),
	})
	if err != nil {
		return "", fmt.Errorf("notifications: render password recovery: %w", err)
	}
	return buf.String(), nil
}

// ResetURL is the frontend page that consumes the token.
func (n PasswordRecovery) ResetURL() string {
	q := url.Values{"token": []string{n.Token}}
	return strings.TrimRight(n.BaseURL, "/") + "/auth/reset-password?" + q.Encode()
}

func (PasswordRecovery) sealed() {}

// Example is a free-form test message.
type Example struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (Example) Kind() Kind { return KindExample }

func (Example) Subject() string { return "Example notification" }

func (n Example) Recipients() []string { return []string{n.Email} }

func (n Example) Body() (string, error) {
	return "<p>Message: " + template.HTMLEscapeString(n.Message) + "</p>", nil
}

func (Example) sealed() {}

var registry = map[Kind]func([]byte) (Notification, error){
	KindPasswordRecovery: decodeAs[PasswordRecovery],
	KindExample:          decodeAs[Example],
}

func decodeAs[T Notification](raw []byte) (Notification, error) {
	var n T
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return n, nil
}

// Decode builds the notification registered for kind from its JSON payload.
func Decode(kind Kind, raw []byte) (Notification, error) {
	decode, ok := registry[kind]
	if !ok {
		return nil, shared.BadRequest("Unknown notification kind: %s", kind)
	}
	n, err := decode(raw)
	if err != nil {
		return nil, shared.WithCause(shared.BadRequest("Invalid %s notification payload", kind), err)
	}
	return n, nil
}
