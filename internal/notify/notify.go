// Package notify emails security alerts to the operator.
package notify

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/ypk/contentguard/internal/model"
)

type Mailer struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

// Enabled reports whether SMTP is configured. An unconfigured mailer is
// a no-op so alerting stays optional.
func (m *Mailer) Enabled() bool {
	return m.Host != "" && m.To != ""
}

// ViolationDetected satisfies the detector's alerter interface. Send
// errors are logged, never propagated; alerting must not affect the
// serving path.
func (m *Mailer) ViolationDetected(e model.ViewEvent) {
	if !m.Enabled() {
		return
	}
	go func() {
		if err := m.sendViolationAlert(e); err != nil {
			slog.Error("violation alert email failed", "error", err)
		}
	}()
}

func (m *Mailer) sendViolationAlert(e model.ViewEvent) error {
	subject := fmt.Sprintf("Security violation on asset %s", e.AssetID)

	textBody := fmt.Sprintf(`A security violation was recorded.

Asset:   %s
Viewer:  %s
Reason:  %s
At:      %s

Check the security report for details.
`, e.AssetID, e.ViewerID, e.Reason, e.CreatedAt.Format("2006-01-02 15:04:05 UTC"))

	htmlBody := fmt.Sprintf(`<html><body>
<p>A security violation was recorded.</p>
<table>
<tr><td>Asset</td><td><strong>%s</strong></td></tr>
<tr><td>Viewer</td><td>%s</td></tr>
<tr><td>Reason</td><td><strong>%s</strong></td></tr>
<tr><td>At</td><td>%s</td></tr>
</table>
<p style="color:#666;font-size:12px;">Check the security report for details.</p>
</body></html>`, e.AssetID, e.ViewerID, e.Reason, e.CreatedAt.Format("2006-01-02 15:04:05 UTC"))

	return m.sendMultipart(m.To, subject, textBody, htmlBody)
}

func (m *Mailer) sendMultipart(to, subject, textBody, htmlBody string) error {
	boundary := "----=_Part_contentguard_boundary"

	headers := []string{
		fmt.Sprintf("From: %s", m.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		fmt.Sprintf(`Content-Type: multipart/alternative; boundary="%s"`, boundary),
	}

	body := strings.Join(headers, "\r\n") + "\r\n\r\n"
	body += "--" + boundary + "\r\n"
	body += "Content-Type: text/plain; charset=utf-8\r\n\r\n"
	body += textBody + "\r\n"
	body += "--" + boundary + "\r\n"
	body += "Content-Type: text/html; charset=utf-8\r\n\r\n"
	body += htmlBody + "\r\n"
	body += "--" + boundary + "--\r\n"

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: m.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			slog.Warn("smtp starttls failed, continuing without", "error", err)
		}
	}

	if m.User != "" {
		auth := smtp.PlainAuth("", m.User, m.Pass, m.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}
