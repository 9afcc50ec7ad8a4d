package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"slices"
	"strings"
	"sync"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/telemetry"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_notifier_notify = "notifier.notify"
)

var ErrNoRecipients = errors.New("no recipients configured")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Options struct {
	Smtp SmtpConfig
	To   []string
	// BaseURL is the portal url the attendance links point to.
	BaseURL string
}

type sendFunc func(mail *email.Email, addr string, auth smtp.Auth) error

func sendMail(mail *email.Email, addr string, auth smtp.Auth) error {
	return mail.Send(addr, auth)
}

// Notifier e-mails attendance links, every timetable id is sent at most once.
type Notifier struct {
	opts Options
	send sendFunc
	tel  telemetry.API

	mutex sync.Mutex
	sent  map[int]struct{}
}

func NewNotifier(opts Options, tel telemetry.API) *Notifier {
	assert.NotNil(tel)
	return &Notifier{
		opts: opts,
		send: sendMail,
		tel:  telemetry.NewScopedAPI("notify", tel),
		sent: map[int]struct{}{},
	}
}

// MarkSent records forms as already notified without sending anything.
func (n *Notifier) MarkSent(forms []attendance.DetailedForm) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for _, f := range forms {
		n.sent[f.TimetableID] = struct{}{}
	}
}

func (n *Notifier) unsent(forms []attendance.DetailedForm) []attendance.DetailedForm {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	var out []attendance.DetailedForm
	for _, f := range forms {
		if _, ok := n.sent[f.TimetableID]; ok {
			continue
		}
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b attendance.DetailedForm) int {
		if a.ClassDate != b.ClassDate {
			return strings.Compare(a.ClassDate, b.ClassDate)
		}
		if a.StartTime != b.StartTime {
			return strings.Compare(a.StartTime, b.StartTime)
		}
		return a.TimetableID - b.TimetableID
	})
	return out
}

// Compose renders the mail listing forms.
func (n *Notifier) Compose(forms []attendance.DetailedForm) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("MMLS Attendance <%s>", n.opts.Smtp.EmailAddress)
	mail.To = n.opts.To
	if len(forms) == 1 {
		mail.Subject = fmt.Sprintf("New attendance link for %s", forms[0].SubjectCode)
	} else {
		mail.Subject = fmt.Sprintf("%d new attendance links", len(forms))
	}

	var body strings.Builder
	for _, f := range forms {
		fmt.Fprintf(&body, "%s - %s (%s)\n", f.SubjectCode, f.SubjectName, f.ClassCode)
		fmt.Fprintf(&body, "%s %s-%s\n", f.ClassDate, f.StartTime, f.EndTime)
		fmt.Fprintln(&body, f.AttendanceURL(n.opts.BaseURL))
		if list, ok := f.AttendanceListURL(n.opts.BaseURL); ok {
			fmt.Fprintf(&body, "Signed: %s\n", list)
		}
		body.WriteString("\n")
	}
	mail.Text = []byte(strings.TrimRight(body.String(), "\n") + "\n")
	return mail
}

// Notify mails the forms that were not sent before and returns how many were sent.
func (n *Notifier) Notify(ctx context.Context, forms []attendance.DetailedForm) (int, error) {
	_, span := tracer.Start(ctx, "Notify")
	defer span.End()

	if len(n.opts.To) == 0 {
		return 0, ErrNoRecipients
	}
	pending := n.unsent(forms)
	if len(pending) == 0 {
		return 0, nil
	}

	mail := n.Compose(pending)
	addr := fmt.Sprintf("%s:%d", n.opts.Smtp.Server, n.opts.Smtp.Port)
	err := n.send(
		mail,
		addr,
		smtp.PlainAuth("", n.opts.Smtp.EmailAddress, n.opts.Smtp.Password, n.opts.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = n.send(mail, addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportBroken(report_notifier_notify, err)
		return 0, err
	}

	n.MarkSent(pending)
	n.tel.ReportDebug(report_notifier_notify+": sent", len(pending))
	return len(pending), nil
}
