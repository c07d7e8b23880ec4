package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mailersend/mailersend-go"
)

type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	return &MailerSend{
		client: mailersend.NewMailersend(apiKey),
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
}

func (m *MailerSend) Send(ctx context.Context, msg Message) (string, error) {
	email := m.client.Email.NewMessage()
	email.SetFrom(m.from)
	email.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.ToEmail}})
	email.SetSubject(msg.Subject)
	if strings.TrimSpace(msg.Text) != "" {
		email.SetText(msg.Text)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		email.SetHTML(msg.HTML)
	}

	res, err := m.client.Email.Send(ctx, email)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	// MailerSend uses X-Message-Id
	return res.Header.Get("X-Message-Id"), nil
}
