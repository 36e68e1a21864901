// Package latex assembles recognized page text into a complete LaTeX document
// and compiles it to PDF with the system TeX toolchain.
package latex

import (
	"regexp"
	"strings"

	"github.com/local/texform/internal/config"
)

// PreambleOptions are the document-level fields of the generated preamble.
type PreambleOptions struct {
	DocumentClass string
	FontSize      string
	Margin        string
	Title         string
	Author        string
	Date          string
}

// DefaultPreamble returns the stock document settings.
func DefaultPreamble() PreambleOptions {
	return PreambleOptions{
		DocumentClass: "article",
		FontSize:      "12pt",
		Margin:        "1in",
		Title:         "Converted Notes",
		Date:          `\today`,
	}
}

// PreambleFromConfig maps latex_generator settings; empty class, size and
// margin fall back to the defaults.
func PreambleFromConfig(c config.LatexConfig) PreambleOptions {
	d := DefaultPreamble()
	o := PreambleOptions{
		DocumentClass: c.DocumentClass,
		FontSize:      c.FontSize,
		Margin:        c.PageGeometry.Margin,
		Title:         c.Title,
		Author:        c.Author,
		Date:          c.Date,
	}
	if o.DocumentClass == "" {
		o.DocumentClass = d.DocumentClass
	}
	if o.FontSize == "" {
		o.FontSize = d.FontSize
	}
	if o.Margin == "" {
		o.Margin = d.Margin
	}
	return o
}

// Preamble renders everything up to and including \maketitle and a blank line.
func Preamble(o PreambleOptions) string {
	date := o.Date
	if date != "" && !strings.HasPrefix(date, `\`) {
		date = strings.ReplaceAll(date, `\`, `\\`)
	}
	var b strings.Builder
	b.WriteString(`\documentclass[` + o.FontSize + `]{` + o.DocumentClass + "}\n")
	b.WriteString("\\usepackage[utf8]{inputenc}\n")
	b.WriteString("\\usepackage{amsmath, amssymb}\n")
	b.WriteString("\\usepackage{geometry}\n")
	b.WriteString(`\geometry{margin=` + o.Margin + "}\n")
	b.WriteString("\\usepackage{graphicx}\n")
	b.WriteString(`\title{` + o.Title + "}\n")
	b.WriteString(`\author{` + o.Author + "}\n")
	b.WriteString(`\date{` + date + "}\n")
	b.WriteString("\n")
	b.WriteString("\\begin{document}\n")
	b.WriteString("\\maketitle\n\n")
	return b.String()
}

// Rule classifies and renders one paragraph.
type Rule struct {
	Name  string
	Match func(p string) bool
	Apply func(p string) string
}

var mathChars = regexp.MustCompile(`[=\\^_{}]`)

func keep(p string) string { return p }

// Rules are tried in order; the first match renders the paragraph.
var Rules = []Rule{
	{
		Name:  "display-math",
		Match: IsDisplayMath,
		Apply: keep,
	},
	{
		Name: "inline-math",
		Match: func(p string) bool {
			return strings.HasPrefix(p, "$") && strings.HasSuffix(p, "$")
		},
		Apply: keep,
	},
	{
		Name:  "math-like",
		Match: LooksLikeMath,
		Apply: func(p string) string {
			return "\\[\n" + strings.Trim(p, "$") + "\n\\]"
		},
	},
	{
		Name:  "text",
		Match: func(string) bool { return true },
		Apply: EscapeText,
	},
}

// IsDisplayMath reports whether p is already a \[...\] block or an equation environment.
func IsDisplayMath(p string) bool {
	if strings.HasPrefix(p, `\[`) && strings.HasSuffix(p, `\]`) {
		return true
	}
	return strings.HasPrefix(p, `\begin{equation`) &&
		strings.HasSuffix(strings.TrimRight(p, " \t\r\n"), `\end{equation}`)
}

// LooksLikeMath is a character-class heuristic: any of = \ ^ _ { }.
func LooksLikeMath(p string) bool { return mathChars.MatchString(p) }

// escapes are applied in sequence, so the braces of \textbackslash{} are
// escaped again by the later brace replacements.
var escapes = []struct{ from, to string }{
	{`\`, `\textbackslash{}`},
	{`&`, `\&`},
	{`%`, `\%`},
	{`$`, `\$`},
	{`#`, `\#`},
	{`_`, `\_`},
	{`{`, `\{`},
	{`}`, `\}`},
	{`^`, `\^{}`},
	{`~`, `\~{}`},
}

// EscapeText escapes LaTeX special characters in a plain-text paragraph.
func EscapeText(p string) string {
	for _, e := range escapes {
		p = strings.ReplaceAll(p, e.from, e.to)
	}
	return p
}

// RenderParagraph applies the first matching rule.
func RenderParagraph(p string) string {
	for _, r := range Rules {
		if r.Match(p) {
			return r.Apply(p)
		}
	}
	return p
}

// Paragraphs splits on blank lines, trims, and drops empties.
func Paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Assemble wraps content into a complete document.
func Assemble(content string, o PreambleOptions) string {
	paras := Paragraphs(content)
	body := make([]string, 0, len(paras))
	for _, p := range paras {
		body = append(body, RenderParagraph(p))
	}
	return Preamble(o) + strings.Join(body, "\n\n") + "\n\n" + `\end{document}`
}
