// Package delivery sends finished digests to their recipients.
package delivery

import (
	"strings"
)

const subjectPrefix = "Market News Summary Today - "

const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f6f6f6; margin: 0; padding: 24px;">
  <div style="max-width: 640px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; padding: 24px;">
    <h2 style="margin-top: 0;">Market News Summary</h2>
    <p style="color: #777777; font-size: 13px;">{{date}}</p>
    {{content}}
    <hr style="border: none; border-top: 1px solid #eeeeee; margin: 24px 0;">
    <p style="color: #999999; font-size: 12px;">You are receiving this email because you follow stocks on your watchlist.</p>
  </div>
</body>
</html>`

// Subject returns the subject line for a digest sent on date.
func Subject(date string) string {
	return subjectPrefix + date
}

// RenderHTML wraps a digest body in the email layout.
func RenderHTML(date, body string) string {
	return strings.NewReplacer("{{date}}", date, "{{content}}", body).Replace(digestTemplate)
}
