package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const boundary = "hanguk-alt-boundary"

type SMTPMailer struct {
	Host   string
	Port   int
	From   string
	User   string
	Pass   string
	UseTLS bool // implicit TLS, e.g. port 465; false for Mailpit on 1025
}

func NewSMTPMailer(host string, port int, from, user, pass string, useTLS bool) *SMTPMailer {
	return &SMTPMailer{
		Host:   strings.TrimSpace(host),
		Port:   port,
		From:   strings.TrimSpace(from),
		User:   strings.TrimSpace(user),
		Pass:   strings.TrimSpace(pass),
		UseTLS: useTLS,
	}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	to := strings.TrimSpace(msg.ToEmail)
	if to == "" {
		return "", fmt.Errorf("empty recipient email")
	}
	body := buildMIME(s.From, to, msg)
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}

	if !s.UseTLS {
		// SendMail upgrades with STARTTLS when the server advertises it.
		return "", smtp.SendMail(addr, auth, s.From, []string{to}, body)
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config:    &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return "", err
	}
	defer c.Quit()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return "", err
		}
	}
	if err := c.Mail(s.From); err != nil {
		return "", err
	}
	if err := c.Rcpt(to); err != nil {
		return "", err
	}
	w, err := c.Data()
	if err != nil {
		return "", err
	}
	if _, err := w.Write(body); err != nil {
		return "", err
	}
	return "", w.Close()
}

func buildMIME(from, to string, msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n\r\n", msg.Text)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n\r\n", msg.HTML)

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
