// Package export renders a transcript and its summary as markdown or as a
// print-ready HTML page.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
)

const (
	defaultOwner = "Someone"
	none         = "_None_"
)

// Markdown renders the summary sections followed by the transcript. A nil
// summary renders every section as _None_.
func Markdown(title, transcript string, s *summary.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", heading(s, title, ""))
	writeSections(&b, s, none, func(a summary.ActionItem) string {
		item := ownerOf(a) + ": " + a.Task
		if a.Due != "" {
			item += " (due " + a.Due + ")"
		}
		return item
	})
	b.WriteString("---\n## Transcript\n")
	b.WriteString(transcript)
	return strings.TrimSpace(b.String())
}

func writeSections(b *strings.Builder, s *summary.Summary, empty string, action func(summary.ActionItem) string) {
	var keyPoints, decisions, actions []string
	if s != nil {
		keyPoints, decisions = s.KeyPoints, s.Decisions
		for _, a := range s.ActionItems {
			actions = append(actions, action(a))
		}
	}
	writeList(b, "Key points", keyPoints, empty)
	writeList(b, "Decisions", decisions, empty)
	writeList(b, "Action items", actions, empty)
}

func writeList(b *strings.Builder, name string, items []string, empty string) {
	fmt.Fprintf(b, "## %s\n", name)
	if len(items) == 0 {
		b.WriteString(empty + "\n\n")
		return
	}
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\n")
}

func heading(s *summary.Summary, title, def string) string {
	switch {
	case s != nil && s.Title != "":
		return s.Title
	case title != "":
		return title
	}
	return def
}

func ownerOf(a summary.ActionItem) string {
	if a.Owner == "" {
		return defaultOwner
	}
	return a.Owner
}

var page = template.Must(template.New("print").Parse(`<!DOCTYPE html><html><head><meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; }
  h1,h2 { margin: 0 0 8px 0; }
  h2 { margin-top: 20px; }
  ul { margin: 8px 0 16px 18px; }
  .muted { color: #666; }
  hr { border: 0; border-top: 1px solid #ddd; margin: 24px 0; }
  code { font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
<hr/>
<h2>Transcript</h2>
<p>{{range $i, $line := .Lines}}{{if $i}}<br/>{{end}}{{$line}}{{end}}</p>
<script>window.addEventListener('load', ()=> setTimeout(()=>window.print(), 250));</script>
</body></html>
`))

var policy = bluemonday.UGCPolicy()

// literal backslash-escapes markdown syntax so model text renders as
// plain text, markup included.
var literal = func() *strings.Replacer {
	var pairs []string
	for _, c := range "\\`*_{}[]()#+-.!:|&<>~" {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

func escapeItems(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = literal.Replace(item)
	}
	return out
}

// HTML renders a standalone page that opens the print dialog on load.
// Summary sections go through markdown and are sanitized; the transcript
// is escaped line by line.
func HTML(title, transcript string, s *summary.Summary) (string, error) {
	if s != nil {
		escaped := *s
		escaped.KeyPoints = escapeItems(s.KeyPoints)
		escaped.Decisions = escapeItems(s.Decisions)
		s = &escaped
	}
	var md strings.Builder
	writeSections(&md, s, "- "+none, func(a summary.ActionItem) string {
		item := "<code>" + literal.Replace(ownerOf(a)) + "</code>: " + literal.Replace(a.Task)
		if a.Due != "" {
			item += " — due " + literal.Replace(a.Due)
		}
		return item
	})
	body := policy.SanitizeBytes(blackfriday.MarkdownCommon([]byte(md.String())))

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title string
		Body  template.HTML
		Lines []string
	}{
		Title: heading(s, title, "Summary"),
		Body:  template.HTML(body),
		Lines: strings.Split(transcript, "\n"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
