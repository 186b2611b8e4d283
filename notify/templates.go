package notify

import (
	"fmt"
	"html"
	"strings"
)

// ReviewerAssigned builds the message sent to a newly assigned reviewer.
func ReviewerAssigned(to, reviewerName, applicantName, link string) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hola %s,</p>", html.EscapeString(reviewerName))
	fmt.Fprintf(&b, "<p>Se te asignó la postulación de <strong>%s</strong> para revisión.</p>", html.EscapeString(applicantName))
	if link != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Ver postulación</a></p>`, html.EscapeString(link))
	}
	return Email{
		To:       to,
		Subject:  "Nueva postulación asignada para revisión",
		HTMLBody: b.String(),
	}
}
