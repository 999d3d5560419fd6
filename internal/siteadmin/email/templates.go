package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var registrationTemplate = template.Must(template.New("registration").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Your Pageit site is ready</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #f5f5f5;">
<table role="presentation" style="width: 100%; border: 0; cellpadding: 0; cellspacing: 0;">
<tr><td style="padding: 40px 0; text-align: center;">
<table role="presentation" style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,0.1);">
<tr><td style="padding: 32px 40px; text-align: left;">
<h1 style="margin: 0 0 16px; font-size: 22px; color: #1a1a1a;">{{.SiteName}} is registered</h1>
<p style="margin: 0 0 16px; color: #444; font-size: 15px; line-height: 1.5;">
An owner account was created for your site <strong>{{.SiteKey}}</strong>.
</p>
<p style="margin: 0 0 8px; color: #444; font-size: 15px;">Email: {{.Email}}</p>
<p style="margin: 0 0 24px; color: #444; font-size: 15px;">Password: <code>{{.Password}}</code></p>
<a href="{{.LoginURL}}" style="display: inline-block; padding: 12px 32px; background: #2563eb; color: #ffffff; text-decoration: none; border-radius: 6px; font-size: 15px; font-weight: 500;">
Sign In
</a>
<p style="margin: 24px 0 0; color: #999; font-size: 13px; line-height: 1.5;">
Change this password after your first sign in.
</p>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

// RegistrationData holds template data for the registration email.
type RegistrationData struct {
	SiteKey  string
	SiteName string
	Email    string
	Password string
	LoginURL string
}

// RenderRegistrationEmail renders the registration HTML and text bodies.
func RenderRegistrationEmail(data RegistrationData) (html, text string, err error) {
	if data.SiteName == "" {
		data.SiteName = data.SiteKey
	}

	var buf bytes.Buffer
	if err := registrationTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render registration template: %w", err)
	}

	textBody := fmt.Sprintf("%s is registered\n\nEmail: %s\nPassword: %s\n\nSign in: %s\n\nChange this password after your first sign in.",
		data.SiteName, data.Email, data.Password, data.LoginURL)

	return buf.String(), textBody, nil
}
