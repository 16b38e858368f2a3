package notify

import (
	"bytes"
	"html/template"
	"strings"
	"testing"

	"github.com/coursereg/registrar/internal/domain"
)

func TestConfirmationTemplateRendersSeatAndQRReference(t *testing.T) {
	tmpl, err := template.New("confirmation").Parse(confirmationTemplate)
	if err != nil {
		t.Fatalf("failed to parse confirmation template: %v", err)
	}

	data := struct {
		CourseName string
		SeatNumber string
		CourseURL  string
		QRFilename string
	}{
		CourseName: "Distributed Systems",
		SeatNumber: "A1",
		CourseURL:  "https://app.coursereg.internal/courses/CS101",
		QRFilename: "qr_CS101-A1.png",
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		t.Fatalf("failed to execute confirmation template: %v", err)
	}
	rendered := buf.String()

	for _, want := range []string{"Distributed Systems", "A1", "qr_CS101-A1.png", data.CourseURL} {
		if !strings.Contains(rendered, want) {
			t.Errorf("expected rendered template to contain %q", want)
		}
	}
}

func TestNotifySeatConfirmedNoOpWithoutMailer(t *testing.T) {
	n := New(nil, "https://app.coursereg.internal")
	student := domain.Student{ID: "stu-1", Email: "asha@example.edu"}
	course := domain.Course{ID: "CS101", Name: "Distributed Systems"}

	// Must not panic when the mailer is unconfigured.
	n.NotifySeatConfirmed(nil, student, course, "A1")
}

func TestNotifySeatConfirmedNoOpWithoutEmail(t *testing.T) {
	n := New(NewMailer("smtp.gmail.com", 587, "user", "pass"), "https://app.coursereg.internal")
	student := domain.Student{ID: "stu-1", Email: ""}
	course := domain.Course{ID: "CS101", Name: "Distributed Systems"}

	// Must not panic or attempt to dial out when the student has no email.
	n.NotifySeatConfirmed(nil, student, course, "A1")
}
