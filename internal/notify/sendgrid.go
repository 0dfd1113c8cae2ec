package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"classroom/internal/apperr"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridNotifier sends mail through the SendGrid v3 API.
type SendgridNotifier struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

func NewSendgridNotifier(key, appName, fromEmail string) *SendgridNotifier {
	return &SendgridNotifier{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
	}
}

func (n *SendgridNotifier) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = n.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (n *SendgridNotifier) Notify(ctx context.Context, msg Message) error {
	const op = "notify.Sendgrid"
	if msg.To.Email == "" {
		return apperr.New(apperr.Validation, op, "recipient %s has no email", msg.To.StudentID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(n.key, sendgridEndpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return apperr.Wrap(apperr.TransientProvider, op, err)
	}
	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return apperr.New(apperr.TransientProvider, op, "sendgrid returned %d", res.StatusCode)
	case res.StatusCode >= http.StatusBadRequest:
		return apperr.Wrap(apperr.Internal, op, fmt.Errorf("sendgrid returned %d: %s", res.StatusCode, res.Body))
	}
	return nil
}
