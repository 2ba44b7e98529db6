// Package templates renders the HTML fragments returned to HTMX requests.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/spbulk/internal/core"
)

// maxListed caps the issues and failed rows shown in a summary.
const maxListed = 10

// ErrorAlert renders an error box with the message, an optional action and
// the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			fmt.Fprintf(&b, `<p class="alert-code">Error code: <code>%s</code></p>`, templ.EscapeString(code))
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// OutcomeSummary renders the result of a workflow run.
func OutcomeSummary(out core.Outcome) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		class := "outcome outcome-success"
		if !out.Success {
			class = "outcome outcome-failure"
		}
		fmt.Fprintf(&b, `<section class="%s" data-run-id="%s">`, class, templ.EscapeString(out.RunID))
		fmt.Fprintf(&b, `<h3>%s</h3>`, templ.EscapeString(out.ListName))
		fmt.Fprintf(&b, `<p class="outcome-message">%s</p>`, templ.EscapeString(out.Message))
		fmt.Fprintf(&b, `<p class="outcome-counts">%d of %d rows submitted`, out.ItemsSubmitted, out.TotalRows)
		if out.DocumentSets > 0 {
			fmt.Fprintf(&b, `, %d document sets`, out.DocumentSets)
		}
		b.WriteString(`</p>`)

		writeList(&b, "outcome-issues", len(out.Issues), func(i int) string {
			return out.Issues[i].String()
		})
		writeList(&b, "outcome-failed-rows", len(out.FailedRows), func(i int) string {
			fr := out.FailedRows[i]
			return fmt.Sprintf("Row %d: %s", fr.Row, fr.Reason)
		})
		writeList(&b, "outcome-warnings", len(out.Warnings), func(i int) string {
			return out.Warnings[i]
		})

		b.WriteString(`</section>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeList(b *strings.Builder, class string, n int, item func(int) string) {
	if n == 0 {
		return
	}
	fmt.Fprintf(b, `<ul class="%s">`, class)
	for i := 0; i < n && i < maxListed; i++ {
		fmt.Fprintf(b, `<li>%s</li>`, templ.EscapeString(item(i)))
	}
	if n > maxListed {
		fmt.Fprintf(b, `<li class="more">... and %d more</li>`, n-maxListed)
	}
	b.WriteString(`</ul>`)
}
