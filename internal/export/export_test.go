package export

import (
	"strings"
	"testing"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/summary"
)

func sample() *summary.Summary {
	return &summary.Summary{
		Title:     "Budget review",
		KeyPoints: []string{"budget frozen", "hiring paused"},
		Decisions: []string{},
		ActionItems: []summary.ActionItem{
			{Owner: "Ana", Task: "draft memo", Due: "friday"},
			{Task: "book room"},
		},
	}
}

func TestMarkdown(t *testing.T) {
	got := Markdown("PrivateScribe session", "hello world", sample())
	want := `# Budget review

## Key points
- budget frozen
- hiring paused

## Decisions
_None_

## Action items
- Ana: draft memo (due friday)
- Someone: book room

---
## Transcript
hello world`
	if got != want {
		t.Errorf("Markdown mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestMarkdownWithoutSummary(t *testing.T) {
	got := Markdown("My title", "", nil)
	if !strings.HasPrefix(got, "# My title\n") {
		t.Errorf("heading should fall back to the title: %q", got)
	}
	if strings.Count(got, "_None_") != 3 {
		t.Errorf("want three empty sections: %q", got)
	}
	if !strings.HasSuffix(got, "## Transcript") {
		t.Errorf("empty transcript should be trimmed: %q", got)
	}
}

func TestHTML(t *testing.T) {
	page, err := HTML("t", "line one\n<b>line two</b>", sample())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<h1>Budget review</h1>",
		"<h2>Key points</h2>",
		"<li>budget frozen</li>",
		"<li><em>None</em></li>",
		"<code>Ana</code>: draft memo — due friday",
		"<code>Someone</code>: book room",
		"line one<br/>&lt;b&gt;line two&lt;/b&gt;",
		"window.print()",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLSanitizesSummary(t *testing.T) {
	s := sample()
	s.KeyPoints = []string{`<script>alert(1)</script>hi`, `<img src=x onerror=alert(1)>`}
	page, err := HTML("t", "", s)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(page, "<script>alert") || strings.Contains(page, "<img") {
		t.Errorf("model output should not become markup:\n%s", page)
	}
}

func TestHTMLRendersModelTextLiterally(t *testing.T) {
	s := sample()
	s.KeyPoints = []string{"<b>x</b>", "a_b_c", "*starred* and `ticked`", "# not a heading"}
	s.ActionItems = []summary.ActionItem{{Owner: "ops_team", Task: "fix [link](http://x)", Due: "1. May"}}
	page, err := HTML("t", "", s)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<li>&lt;b&gt;x&lt;/b&gt;</li>",
		"<li>a_b_c</li>",
		"<li>*starred* and `ticked`</li>",
		"<li># not a heading</li>",
		"<code>ops_team</code>: fix [link](http://x) — due 1. May",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q:\n%s", want, page)
		}
	}
	if strings.Contains(page, "<b>x</b>") || strings.Contains(page, "<em>starred") {
		t.Error("model text rendered as markup")
	}
}

func TestHTMLDefaultTitle(t *testing.T) {
	page, err := HTML("", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(page, "<h1>Summary</h1>") {
		t.Error("missing default title")
	}
}
