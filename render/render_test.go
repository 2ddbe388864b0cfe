package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/profclems/catchhook/protocol"
)

func TestFormatTimeAgo(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	nowMs := now.UnixMilli()

	tests := []struct {
		name string
		ts   int64
		want string
	}{
		{name: "just now", ts: nowMs, want: "0s ago"},
		{name: "45 seconds", ts: nowMs - 45_000, want: "45s ago"},
		{name: "59.9 seconds floors", ts: nowMs - 59_999, want: "59s ago"},
		{name: "60 seconds boundary", ts: nowMs - 60_000, want: "1m ago"},
		{name: "59 minutes", ts: nowMs - 59*60_000, want: "59m ago"},
		{name: "60 minutes boundary", ts: nowMs - 3_600_000, want: "1h ago"},
		{name: "3700 seconds", ts: nowMs - 3_700_000, want: "1h ago"},
		{name: "23 hours", ts: nowMs - 23*3_600_000, want: "23h ago"},
		{name: "24 hours boundary", ts: nowMs - 24*3_600_000, want: "1d ago"},
		{name: "10 days", ts: nowMs - 10*24*3_600_000, want: "10d ago"},
		{name: "future clamps", ts: nowMs + 5_000, want: "0s ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimeAgo(tt.ts, now); got != tt.want {
				t.Errorf("FormatTimeAgo() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		wantType    string
		wantContent string
	}{
		{
			name:        "empty",
			body:        nil,
			wantType:    "",
			wantContent: "(empty)",
		},
		{
			name:        "json object",
			body:        []byte(`{"a":1}`),
			wantType:    TypeJSON,
			wantContent: "{\n  \"a\": 1\n}",
		},
		{
			name:        "json nested with surrounding space",
			body:        []byte("  {\"a\":{\"b\":[1,2]}}\n"),
			wantType:    TypeJSON,
			wantContent: "{\n  \"a\": {\n    \"b\": [\n      1,\n      2\n    ]\n  }\n}",
		},
		{
			name:        "non-breaking space before json is text",
			body:        []byte("\u00a0{}"),
			wantType:    TypeText,
			wantContent: "\u00a0{}",
		},
		{
			name:        "json with trailing tab and crlf",
			body:        []byte("[1]\t\r\n"),
			wantType:    TypeJSON,
			wantContent: "[\n  1\n]",
		},
		{
			name:        "json scalar",
			body:        []byte(`42`),
			wantType:    TypeJSON,
			wantContent: "42",
		},
		{
			name:        "xml",
			body:        []byte("<note><to>x</to></note>"),
			wantType:    TypeXMLHTML,
			wantContent: "<note><to>x</to></note>",
		},
		{
			name:        "html with whitespace",
			body:        []byte("\n  <html></html>  \n"),
			wantType:    TypeXMLHTML,
			wantContent: "\n  <html></html>  \n",
		},
		{
			name:        "form data",
			body:        []byte("a=1&b=2"),
			wantType:    TypeFormData,
			wantContent: "a=1&b=2",
		},
		{
			name:        "equals without ampersand is text",
			body:        []byte("a=1"),
			wantType:    TypeText,
			wantContent: "a=1",
		},
		{
			name:        "plain text",
			body:        []byte("hello world"),
			wantType:    TypeText,
			wantContent: "hello world",
		},
		{
			name:        "broken json is text",
			body:        []byte(`{"a":`),
			wantType:    TypeText,
			wantContent: `{"a":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBody(tt.body)
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", got.Content, tt.wantContent)
			}
		})
	}
}

func TestParseBody_Binary(t *testing.T) {
	body := make([]byte, 30)
	body[0] = 0xff
	for i := 1; i < len(body); i++ {
		body[i] = byte(i)
	}

	got := ParseBody(body)
	if got.Type != TypeBinary {
		t.Fatalf("Type = %q, want %q", got.Type, TypeBinary)
	}

	if !strings.HasPrefix(got.Content, "Binary data (30 bytes): [255, 1, 2") {
		t.Errorf("Content = %q, want binary preview prefix", got.Content)
	}
	if !strings.HasSuffix(got.Content, "19...]") {
		t.Errorf("Content = %q, want truncation marker after 20 values", got.Content)
	}

	inner := strings.TrimSuffix(strings.SplitN(got.Content, "[", 2)[1], "...]")
	if n := len(strings.Split(inner, ", ")); n != 20 {
		t.Errorf("preview lists %d values, want 20", n)
	}
}

func TestParseBody_BinaryShort(t *testing.T) {
	got := ParseBody([]byte{0xc3, 0x28})
	if got.Type != TypeBinary {
		t.Fatalf("Type = %q, want %q", got.Type, TypeBinary)
	}
	want := "Binary data (2 bytes): [195, 40]"
	if got.Content != want {
		t.Errorf("Content = %q, want %q", got.Content, want)
	}
}

func TestList_Empty(t *testing.T) {
	out, err := ListString(ListView{Now: time.Now()})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if !strings.Contains(out, "No webhook requests yet") {
		t.Errorf("empty list missing placeholder: %s", out)
	}
	if strings.Contains(out, "webhook-item") {
		t.Errorf("empty list rendered items: %s", out)
	}
}

func TestList_Items(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	view := ListView{
		Requests: []protocol.Request{
			{ID: 2, TsMs: now.UnixMilli() - 45_000, Method: "post", Path: "/webhook/a"},
			{ID: 1, TsMs: now.UnixMilli() - 3_700_000, Method: "GET", Path: "/webhook/b"},
		},
		Selected: 1,
		Now:      now,
	}

	out, err := ListString(view)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if got := strings.Count(out, `class="webhook-item`); got != 2 {
		t.Errorf("rendered %d items, want 2", got)
	}
	for _, want := range []string{
		`method-post">POST<`,
		`method-get">GET<`,
		"45s ago",
		"1h ago",
		`class="webhook-item active" data-request-id="1"`,
		`class="webhook-item" data-request-id="2"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}
}

func TestList_EscapesPath(t *testing.T) {
	view := ListView{
		Requests: []protocol.Request{
			{ID: 1, Method: "POST", Path: "/webhook?<script>alert(1)</script>"},
		},
		Now: time.Now(),
	}

	out, err := ListString(view)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("path rendered unescaped: %s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("path not escaped as expected: %s", out)
	}
}

func TestList_MethodClassSanitized(t *testing.T) {
	view := ListView{
		Requests: []protocol.Request{{ID: 1, Method: `GET" onclick="x`, Path: "/"}},
		Now:      time.Now(),
	}

	out, err := ListString(view)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if strings.Contains(out, `onclick="x`) {
		t.Errorf("method leaked into markup: %s", out)
	}
	if !strings.Contains(out, "method-getonclickx") {
		t.Errorf("method class not sanitized: %s", out)
	}
}

func TestDetail(t *testing.T) {
	req := &protocol.Request{
		ID:     9,
		TsMs:   1_700_000_000_000,
		Method: "post",
		Path:   "/webhook/<b>",
		Headers: []protocol.Header{
			{Name: "content-type", Value: "application/json"},
			{Name: "x-evil", Value: `"><img src=x onerror=alert(1)>`},
		},
		Body: protocol.Body(`{"a":1}`),
	}

	out, err := DetailString(req)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}

	for _, want := range []string{
		"Request #9",
		"Body (JSON)",
		"content-type",
		"application/json",
		"&lt;b&gt;",
		"&lt;img src=x onerror=alert(1)&gt;",
		"Raw Data",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<img") || strings.Contains(out, "<b>") {
		t.Errorf("detail contains unescaped markup:\n%s", out)
	}
}

func TestDetail_NoHeadersEmptyBody(t *testing.T) {
	out, err := DetailString(&protocol.Request{ID: 1, Method: "GET", Path: "/"})
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if !strings.Contains(out, "No headers") {
		t.Errorf("detail missing no-headers placeholder:\n%s", out)
	}
	if !strings.Contains(out, "(empty)") {
		t.Errorf("detail missing empty body placeholder:\n%s", out)
	}
	if strings.Contains(out, "Body (") {
		t.Errorf("empty body should have no type label:\n%s", out)
	}
}

func TestDetail_Nil(t *testing.T) {
	out, err := DetailString(nil)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if !strings.Contains(out, "Select a request") {
		t.Errorf("nil detail missing placeholder: %s", out)
	}
}

func TestPage(t *testing.T) {
	var buf bytes.Buffer
	err := Page(&buf, PageView{
		Title:      "Catchhook",
		WebhookURL: "http://localhost:43999/webhook",
		AssetsPath: "/ui/assets/",
		Interval:   5 * time.Second,
		Polling:    true,
		List: ListView{
			Requests: []protocol.Request{{ID: 1, Method: "POST", Path: "/webhook"}},
			Now:      time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"http://localhost:43999/webhook",
		`src="/ui/assets/app.js"`,
		`data-interval-ms="5000"`,
		"Auto-refresh active (every 5s)",
		`data-request-id="1"`,
		"Select a request",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestTextList(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	var buf bytes.Buffer
	err := TextList(&buf, ListView{
		Requests: []protocol.Request{
			{ID: 3, TsMs: now.UnixMilli() - 45_000, Method: "post", Path: "/webhook\x1b[2J"},
		},
		Selected: 3,
		Now:      now,
	})
	if err != nil {
		t.Fatalf("TextList failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "\x1b") {
		t.Errorf("escape sequence leaked to terminal output: %q", out)
	}
	for _, want := range []string{">", "#3", "POST", "45s ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("text list missing %q: %q", want, out)
		}
	}
}

func TestTextList_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := TextList(&buf, ListView{Now: time.Now()}); err != nil {
		t.Fatalf("TextList failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No webhook requests yet") {
		t.Errorf("empty text list missing placeholder: %q", buf.String())
	}
}

func TestTextDetail(t *testing.T) {
	var buf bytes.Buffer
	err := TextDetail(&buf, &protocol.Request{
		ID:      4,
		Method:  "PUT",
		Path:    "/webhook",
		Headers: []protocol.Header{{Name: "x-a", Value: "1"}},
		Body:    protocol.Body("a=1&b=2"),
	})
	if err != nil {
		t.Fatalf("TextDetail failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"PUT /webhook", "Request #4", "x-a: 1", "Body (Form Data)", "a=1&b=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("text detail missing %q: %q", want, out)
		}
	}
}
