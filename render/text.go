package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	"github.com/profclems/catchhook/protocol"
)

// TextList writes the request list as aligned columns for a terminal
func TextList(w io.Writer, view ListView) error {
	if len(view.Requests) == 0 {
		_, err := fmt.Fprintln(w, "No webhook requests yet. Send a request to your webhook URL to get started.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range view.Requests {
		marker := " "
		if view.Selected != 0 && view.Selected == r.ID {
			marker = ">"
		}
		fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\t%s\n",
			marker,
			r.ID,
			sanitizeLine(strings.ToUpper(r.Method)),
			sanitizeLine(r.Path),
			FormatTimeAgo(r.TsMs, view.Now),
		)
	}
	return tw.Flush()
}

// TextDetail writes a single request with headers and body
func TextDetail(w io.Writer, req *protocol.Request) error {
	if req == nil {
		_, err := fmt.Fprintln(w, "No request selected.")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", sanitizeLine(strings.ToUpper(req.Method)), sanitizeLine(req.Path))
	fmt.Fprintf(&b, "Request #%d • %s\n\n", req.ID, req.Time().Local().Format(TimestampLayout))

	b.WriteString("Headers\n")
	if len(req.Headers) == 0 {
		b.WriteString("  No headers\n")
	}
	for _, h := range req.Headers {
		fmt.Fprintf(&b, "  %s: %s\n", sanitizeLine(h.Name), sanitizeLine(h.Value))
	}

	body := ParseBody(req.Body)
	b.WriteString("\nBody")
	if body.Type != "" {
		fmt.Fprintf(&b, " (%s)", body.Type)
	}
	b.WriteString("\n")
	b.WriteString(sanitizeBlock(body.Content))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// TextSnapshot writes a header line, the list and, when present, the detail
func TextSnapshot(w io.Writer, view ListView, selected *protocol.Request, source string) error {
	fmt.Fprintf(w, "catchhook %s | %d request(s) | %s\n\n", source, len(view.Requests), view.Now.Format(time.TimeOnly))
	if err := TextList(w, view); err != nil {
		return err
	}
	if selected == nil {
		return nil
	}
	fmt.Fprintln(w)
	return TextDetail(w, selected)
}

// sanitizeLine replaces control characters so captured data cannot move the
// cursor or emit escape sequences.
func sanitizeLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '\uFFFD'
		}
		return r
	}, s)
}

// sanitizeBlock is sanitizeLine but keeps newlines and tabs.
func sanitizeBlock(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return '\uFFFD'
		}
		return r
	}, s)
}
