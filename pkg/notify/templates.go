// Package notify renders and delivers user emails and writes the admin activity feed.
package notify

import (
	"fmt"
	"strings"
)

// Template names
const (
	TemplateShiftTradeCompleted = "shift_trade_completed"
)

// Template is an email subject and body with {{placeholder}} markers
type Template struct {
	Subject string
	Body    string
}

// Templates is the set of email templates by name
type Templates map[string]Template

// DefaultTemplates returns the built-in Danish templates
func DefaultTemplates() Templates {
	return Templates{
		TemplateShiftTradeCompleted: {
			Subject: "Dit vagtbytte er gennemført",
			Body: "Hej {{offeringUserName}},\n\n" +
				"Din vagt \"{{roleName}}\" for vagten \"{{shiftTitle}}\" d. {{shiftDate}} er blevet overtaget af {{acceptingUserName}}.\n\n" +
				"Du er ikke længere ansvarlig for denne vagt.\n\n" +
				"Med venlig hilsen,\n{{siteName}}",
		},
	}
}

// Override replaces the non-empty parts of a named template
func (t Templates) Override(name, subject, body string) {
	tmpl := t[name]
	if subject != "" {
		tmpl.Subject = subject
	}
	if body != "" {
		tmpl.Body = body
	}
	t[name] = tmpl
}

// Render fills a template. Unknown placeholders are left as written.
func (t Templates) Render(name string, data map[string]string) (subject, body string, err error) {
	tmpl, ok := t[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)

	return r.Replace(tmpl.Subject), r.Replace(tmpl.Body), nil
}
