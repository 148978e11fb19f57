package lifecycle

import (
	"bytes"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
)

type messageData struct {
	Request      entity.Request
	Kind         string
	SubmittedAt  string
	ReviewWindow string
}

const teamText = `New account {{.Kind}} request

Request:   {{.Request.ID}}
User:      {{.Request.UserID}} <{{.Request.Email}}>
Submitted: {{.SubmittedAt}}
{{- if .Request.Reason}}
Reason:    {{.Request.Reason}}
{{- end}}
`

const teamHTML = `<h2>New account {{.Kind}} request</h2>
<ul>
<li>Request: {{.Request.ID}}</li>
<li>User: {{.Request.UserID}} &lt;{{.Request.Email}}&gt;</li>
<li>Submitted: {{.SubmittedAt}}</li>
{{- if .Request.Reason}}
<li>Reason: {{.Request.Reason}}</li>
{{- end}}
</ul>
`

const userText = `Hello,

We received your account {{.Kind}} request ({{.Request.ID}}) on {{.SubmittedAt}}.
Our team will review it within {{.ReviewWindow}}. You will be signed out once it is approved.
`

const userHTML = `<p>Hello,</p>
<p>We received your account {{.Kind}} request ({{.Request.ID}}) on {{.SubmittedAt}}.</p>
<p>Our team will review it within {{.ReviewWindow}}. You will be signed out once it is approved.</p>
`

var (
	teamTextTmpl = texttemplate.Must(texttemplate.New("team.txt").Parse(teamText))
	teamHTMLTmpl = htmltemplate.Must(htmltemplate.New("team.html").Parse(teamHTML))
	userTextTmpl = texttemplate.Must(texttemplate.New("user.txt").Parse(userText))
	userHTMLTmpl = htmltemplate.Must(htmltemplate.New("user.html").Parse(userHTML))
)

func render(data messageData, text *texttemplate.Template, html *htmltemplate.Template) (string, string, error) {
	var t, h bytes.Buffer
	if err := text.Execute(&t, data); err != nil {
		return "", "", err
	}
	if err := html.Execute(&h, data); err != nil {
		return "", "", err
	}
	return t.String(), h.String(), nil
}

func newMessageData(req entity.Request, reviewWindow time.Duration) messageData {
	return messageData{
		Request:      req,
		Kind:         string(req.RequestType),
		SubmittedAt:  req.SubmittedAt.UTC().Format(time.RFC1123),
		ReviewWindow: humanDuration(reviewWindow),
	}
}

// teamMessage is the notice sent to the operating team for a new request.
func teamMessage(req entity.Request, to string) (entity.Message, error) {
	text, html, err := render(newMessageData(req, 0), teamTextTmpl, teamHTMLTmpl)
	if err != nil {
		return entity.Message{}, err
	}
	return entity.Message{
		To:      to,
		Subject: "[Account] " + string(req.RequestType) + " request from " + req.Email,
		Text:    text,
		HTML:    html,
	}, nil
}

// userMessage confirms a submission to the requesting user.
func userMessage(req entity.Request, reviewWindow time.Duration) (entity.Message, error) {
	text, html, err := render(newMessageData(req, reviewWindow), userTextTmpl, userHTMLTmpl)
	if err != nil {
		return entity.Message{}, err
	}
	return entity.Message{
		To:      req.Email,
		Subject: "We received your account " + string(req.RequestType) + " request",
		Text:    text,
		HTML:    html,
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a few days"
	case d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return strconv.Itoa(days) + " days"
	case d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return strconv.Itoa(hours) + " hours"
	default:
		return d.String()
	}
}
