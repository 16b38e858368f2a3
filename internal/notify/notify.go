// Package notify sends a seat-confirmation email when the Vacancy Filler
// auto-enrolls a waitlisted student, adapted from the teacher's
// internal/api/utils/gomail.go (Mailer/NewMailer/Send) and emails.go
// (SendConfirmationMail's HTML template + embedded QR code).
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	gomail "gopkg.in/gomail.v2"
)

// Mailer holds SMTP dialer configuration, unchanged from the teacher's
// internal/api/utils Mailer.
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string

	InsecureSkipVerify bool
}

func NewMailer(host string, port int, username, password string) *Mailer {
	return &Mailer{Host: host, Port: port, Username: username, Password: password}
}

func (m *Mailer) send(from string, to []string, subject, body string, isHTML bool) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients provided")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	if isHTML {
		msg.SetBody("text/html", body)
	} else {
		msg.SetBody("text/plain", body)
	}

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if m.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// Notifier sends seat-confirmation emails. It satisfies
// orchestrator.Notifier.
type Notifier struct {
	mailer *Mailer
	appURL string
}

func New(mailer *Mailer, appURL string) *Notifier {
	return &Notifier{mailer: mailer, appURL: appURL}
}

// NewFromEnv builds a Notifier the way the teacher's sendConfirmationMail
// reads GMAIL_USER/GMAIL_PASS from the environment.
func NewFromEnv() *Notifier {
	return New(NewMailer(
		"smtp.gmail.com",
		587,
		os.Getenv("GMAIL_USER"),
		os.Getenv("GMAIL_PASS"),
	), "https://app.coursereg.internal")
}

const confirmationTemplate = `<!doctype html>
<html>
  <body style="margin:0;padding:0;background:#f4f6fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial;">
    <center style="width:100%;background:#f4f6fb;padding:28px 12px;">
      <table role="presentation" width="560" cellpadding="0" cellspacing="0" border="0" style="max-width:560px;width:100%;background:#ffffff;border-radius:12px;overflow:hidden;box-shadow:0 8px 30px rgba(15,23,42,0.06);">
        <tr>
          <td style="padding:18px 20px;background:linear-gradient(90deg,#0f172a,#0f3b91);color:#ffffff;">
            <div style="font-size:18px;font-weight:700;">{{ .CourseName }}</div>
            <div style="font-size:13px;opacity:0.9;margin-top:6px;">You've been auto-enrolled from the waitlist</div>
          </td>
        </tr>
        <tr>
          <td style="padding:18px 20px;text-align:center;">
            <img src="cid:{{ .QRFilename }}" alt="Seat QR" width="120" height="120" style="display:block;margin:0 auto 12px auto;"/>
            <div style="font-size:12px;color:#6b7280;">Seat</div>
            <div style="font-size:20px;font-weight:700;color:#0f172a;margin-bottom:8px;">{{ .SeatNumber }}</div>
            <a href="{{ .CourseURL }}" style="display:inline-block;padding:8px 12px;font-weight:700;font-size:13px;text-decoration:none;border-radius:8px;background:#0f3b91;color:#ffffff;">View course</a>
          </td>
        </tr>
      </table>
    </center>
  </body>
</html>`

// NotifySeatConfirmed sends the confirmation email. Failures are logged,
// not returned, since the Vacancy Filler's observable success only
// depends on the booking itself having succeeded.
func (n *Notifier) NotifySeatConfirmed(ctx context.Context, student domain.Student, course domain.Course, seatNumber string) {
	if n.mailer == nil || student.Email == "" {
		return
	}
	go n.sendConfirmation(student, course, seatNumber)
}

func (n *Notifier) sendConfirmation(student domain.Student, course domain.Course, seatNumber string) {
	reference := fmt.Sprintf("%s-%s", course.ID, seatNumber)
	qrFilename := fmt.Sprintf("qr_%s.png", strings.ReplaceAll(reference, " ", ""))

	png, err := qrcode.Encode(reference, qrcode.Medium, 256)
	if err != nil {
		log.Warn().Err(err).Msg("notify: failed to generate qr code, sending plain text instead")
		_ = n.mailer.send("Course Registrar <noreply@coursereg.internal>", []string{student.Email},
			fmt.Sprintf("You're enrolled in %s", course.Name),
			fmt.Sprintf("You were auto-enrolled in %s, seat %s.", course.Name, seatNumber), false)
		return
	}

	data := struct {
		CourseName string
		SeatNumber string
		CourseURL  string
		QRFilename string
	}{
		CourseName: course.Name,
		SeatNumber: seatNumber,
		CourseURL:  fmt.Sprintf("%s/courses/%s", n.appURL, course.ID),
		QRFilename: qrFilename,
	}

	t, err := template.New("confirmation").Parse(confirmationTemplate)
	if err != nil {
		log.Warn().Err(err).Msg("notify: failed to parse confirmation template")
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		log.Warn().Err(err).Msg("notify: failed to execute confirmation template")
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", "Course Registrar <noreply@coursereg.internal>")
	msg.SetHeader("To", student.Email)
	msg.SetHeader("Subject", fmt.Sprintf("You're enrolled in %s", course.Name))
	msg.SetBody("text/html", buf.String())
	msg.Embed(qrFilename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(png)
		return err
	}))

	d := gomail.NewDialer(n.mailer.Host, n.mailer.Port, n.mailer.Username, n.mailer.Password)
	if n.mailer.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if err := d.DialAndSend(msg); err != nil {
		log.Warn().Err(err).Str("student_id", student.ID).Msg("notify: failed to send confirmation email")
	}
}
