package mailer

import (
	"bytes"
	"fmt"
	htemplate "html/template"
	ttemplate "text/template"
)

var registrationHTML = htemplate.Must(htemplate.New("registration_html").Parse(`<html>
<body>
  <p>Hi,</p>
  <p>Please confirm your email address to finish creating your Ziply account.</p>
  <p><a href="{{.ConfirmURL}}">Confirm your email</a></p>
  <p>This link expires in one hour. If you did not request this, you can ignore this email.</p>
</body>
</html>
`))

var registrationText = ttemplate.Must(ttemplate.New("registration_text").Parse(`Hi,

Please confirm your email address to finish creating your Ziply account:

{{.ConfirmURL}}

This link expires in one hour. If you did not request this, you can ignore this email.
`))

var invitationHTML = htemplate.Must(htemplate.New("invitation_html").Parse(`<html>
<body>
  <p>Hi,</p>
  <p>{{.InvitedByName}} has invited you to join {{.BusinessName}} on Ziply.</p>
  <p><a href="{{.InviteURL}}">Accept the invitation</a></p>
  <p>This invitation expires in 24 hours.</p>
</body>
</html>
`))

var invitationText = ttemplate.Must(ttemplate.New("invitation_text").Parse(`Hi,

{{.InvitedByName}} has invited you to join {{.BusinessName}} on Ziply:

{{.InviteURL}}

This invitation expires in 24 hours.
`))

type registrationVars struct {
	Email      string
	ConfirmURL string
}

type invitationVars struct {
	Email         string
	BusinessName  string
	InvitedByName string
	InviteURL     string
}

func renderRegistration(vars registrationVars) (html, text string, err error) {
	var h, t bytes.Buffer
	if err := registrationHTML.Execute(&h, vars); err != nil {
		return "", "", fmt.Errorf("render registration html: %w", err)
	}
	if err := registrationText.Execute(&t, vars); err != nil {
		return "", "", fmt.Errorf("render registration text: %w", err)
	}
	return h.String(), t.String(), nil
}

func renderInvitation(vars invitationVars) (html, text string, err error) {
	var h, t bytes.Buffer
	if err := invitationHTML.Execute(&h, vars); err != nil {
		return "", "", fmt.Errorf("render invitation html: %w", err)
	}
	if err := invitationText.Execute(&t, vars); err != nil {
		return "", "", fmt.Errorf("render invitation text: %w", err)
	}
	return h.String(), t.String(), nil
}
