package handlers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// EmailMessage is the typed view an email node resolves to.
type EmailMessage struct {
	SenderEmail    string
	SenderPassword string
	SMTPServer     string
	ReceiverEmail  string
	Subject        string
	Body           string
}

// EmailHandler sends mail for email nodes over implicit-TLS SMTP.
//
// Inputs (from node data): "receiver_email", "subject", "message".
// Credentials (platform "email"): data.sender_email, data.sender_password,
// data.smtp_server.
type EmailHandler struct {
	port   int
	send   func(ctx context.Context, port int, msg *EmailMessage) error
	logger core.Logger
}

// EmailOption configures an EmailHandler.
type EmailOption func(*EmailHandler)

// WithSendFunc overrides the SMTP delivery function, for tests.
func WithSendFunc(send func(ctx context.Context, port int, msg *EmailMessage) error) EmailOption {
	return func(h *EmailHandler) {
		if send != nil {
			h.send = send
		}
	}
}

// NewEmailHandler creates the handler. port is the SMTPS port, 465 by
// convention.
func NewEmailHandler(port int, logger core.Logger, opts ...EmailOption) *EmailHandler {
	if port <= 0 {
		port = 465
	}
	h := &EmailHandler{
		port:   port,
		send:   sendSMTPS,
		logger: logger,
	}
	if h.logger != nil {
		if cal, ok := h.logger.(core.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("handlers/email")
		}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute implements engine.NodeHandler.
func (h *EmailHandler) Execute(ctx context.Context, node *engine.Node, credentials map[string]engine.Credential) (interface{}, error) {
	creds, ok := credentials["email"]
	if !ok {
		return nil, fmt.Errorf("email: no email credential attached to job")
	}

	msg := &EmailMessage{
		SenderEmail:    stringField(creds.Data, "sender_email"),
		SenderPassword: stringField(creds.Data, "sender_password"),
		SMTPServer:     stringField(creds.Data, "smtp_server"),
		ReceiverEmail:  stringField(node.Data, "receiver_email"),
		Subject:        stringField(node.Data, "subject"),
		Body:           stringField(node.Data, "message"),
	}

	if msg.SenderEmail == "" || msg.SenderPassword == "" || msg.SMTPServer == "" {
		return nil, fmt.Errorf("email: credential is missing sender_email, sender_password or smtp_server")
	}
	if msg.ReceiverEmail == "" {
		return nil, fmt.Errorf("email: receiver_email is required")
	}

	if err := h.send(ctx, h.port, msg); err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}

	if h.logger != nil {
		h.logger.InfoWithContext(ctx, "Email sent", map[string]interface{}{
			"node_id":  node.ID,
			"receiver": msg.ReceiverEmail,
			"server":   msg.SMTPServer,
		})
	}

	return map[string]interface{}{"status": "sent"}, nil
}

// sendSMTPS delivers over an implicit-TLS connection with PLAIN auth.
func sendSMTPS(ctx context.Context, port int, msg *EmailMessage) error {
	addr := net.JoinHostPort(msg.SMTPServer, strconv.Itoa(port))

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: msg.SMTPServer}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, core.ErrConnectionFailed)
	}

	client, err := smtp.NewClient(conn, msg.SMTPServer)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = client.Close() }()

	auth := smtp.PlainAuth("", msg.SenderEmail, msg.SenderPassword, msg.SMTPServer)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(msg.SenderEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.ReceiverEmail); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(formatMessage(msg))); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}

func formatMessage(msg *EmailMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.SenderEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.ReceiverEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return b.String()
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

// Compile-time interface compliance check
var _ engine.NodeHandler = (*EmailHandler)(nil)
