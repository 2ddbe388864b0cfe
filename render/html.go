package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/profclems/catchhook/protocol"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// TimestampLayout is used for the absolute arrival time in the detail view
const TimestampLayout = "2006-01-02 15:04:05"

// ListView is the state needed to render the request list
type ListView struct {
	Requests []protocol.Request
	// Selected is the id of the selected request, 0 when nothing is selected
	Selected uint64
	Now      time.Time
}

// PageView is the state needed to render the full dashboard page
type PageView struct {
	Title      string
	WebhookURL string
	AssetsPath string
	Interval   time.Duration
	Polling    bool
	List       ListView
	Detail     *protocol.Request
}

type listItem struct {
	ID          uint64
	Method      string
	MethodClass string
	Path        string
	Age         string
	Active      bool
}

type detailView struct {
	ID          uint64
	Method      string
	MethodClass string
	Path        string
	Timestamp   string
	Headers     []protocol.Header
	Body        BodyView
	Raw         string
}

type pageData struct {
	Title           string
	WebhookURL      string
	AssetsPath      string
	IntervalMs      int64
	IntervalSeconds int64
	Polling         bool
	List            template.HTML
	Detail          template.HTML
}

// List renders the request list. An empty list renders the empty-state
// placeholder.
func List(w io.Writer, view ListView) error {
	items := make([]listItem, 0, len(view.Requests))
	for _, r := range view.Requests {
		method := strings.ToUpper(r.Method)
		items = append(items, listItem{
			ID:          r.ID,
			Method:      method,
			MethodClass: methodClass(method),
			Path:        r.Path,
			Age:         FormatTimeAgo(r.TsMs, view.Now),
			Active:      view.Selected != 0 && view.Selected == r.ID,
		})
	}
	return templates.ExecuteTemplate(w, "list", struct{ Items []listItem }{items})
}

// Detail renders the detail panel for req. A nil request renders the
// "select a request" placeholder.
func Detail(w io.Writer, req *protocol.Request) error {
	if req == nil {
		return templates.ExecuteTemplate(w, "detail", (*detailView)(nil))
	}

	raw, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}

	method := strings.ToUpper(req.Method)
	view := &detailView{
		ID:          req.ID,
		Method:      method,
		MethodClass: methodClass(method),
		Path:        req.Path,
		Timestamp:   req.Time().Local().Format(TimestampLayout),
		Headers:     req.Headers,
		Body:        ParseBody(req.Body),
		Raw:         string(raw),
	}
	return templates.ExecuteTemplate(w, "detail", view)
}

// Page renders the full dashboard document with the list and detail panes
// already filled in.
func Page(w io.Writer, view PageView) error {
	var list, detail bytes.Buffer
	if err := List(&list, view.List); err != nil {
		return err
	}
	if err := Detail(&detail, view.Detail); err != nil {
		return err
	}

	data := pageData{
		Title:           view.Title,
		WebhookURL:      view.WebhookURL,
		AssetsPath:      strings.TrimSuffix(view.AssetsPath, "/"),
		IntervalMs:      view.Interval.Milliseconds(),
		IntervalSeconds: int64(view.Interval / time.Second),
		Polling:         view.Polling,
		// Both fragments were produced by the escaping templates above.
		List:   template.HTML(list.String()),
		Detail: template.HTML(detail.String()),
	}
	return templates.ExecuteTemplate(w, "page", data)
}

// ListString is List into a string
func ListString(view ListView) (string, error) {
	var buf bytes.Buffer
	if err := List(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DetailString is Detail into a string
func DetailString(req *protocol.Request) (string, error) {
	var buf bytes.Buffer
	if err := Detail(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// methodClass maps a method to a CSS class suffix, keeping only letters.
func methodClass(method string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, method)
}
