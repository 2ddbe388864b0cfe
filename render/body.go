// Package render turns captured requests into markup for the dashboard and
// plain text for the terminal. Every function here is a pure function of its
// inputs; the current time is always passed in.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Body types reported by ParseBody
const (
	TypeJSON     = "JSON"
	TypeXMLHTML  = "XML/HTML"
	TypeFormData = "Form Data"
	TypeText     = "Text"
	TypeBinary   = "Binary"
)

// EmptyBody is shown in place of a body with no bytes
const EmptyBody = "(empty)"

// binaryPreviewBytes caps how many byte values the binary preview lists
const binaryPreviewBytes = 20

// BodyView is the displayable form of a request body
type BodyView struct {
	Content string
	Type    string // empty when the body is empty
}

// ParseBody decodes a request body for display. Bodies that are not valid
// UTF-8 are shown as a short byte preview.
func ParseBody(body []byte) BodyView {
	if len(body) == 0 {
		return BodyView{Content: EmptyBody}
	}

	if !utf8.Valid(body) {
		return BodyView{Content: binaryPreview(body), Type: TypeBinary}
	}

	if pretty, ok := prettyJSON(body); ok {
		return BodyView{Content: pretty, Type: TypeJSON}
	}

	text := string(body)
	return BodyView{Content: text, Type: DetectContentType(text)}
}

// DetectContentType guesses the kind of a non-JSON text body
func DetectContentType(content string) string {
	if content == "" {
		return ""
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") {
		return TypeXMLHTML
	}
	if strings.Contains(trimmed, "=") && strings.Contains(trimmed, "&") {
		return TypeFormData
	}
	return TypeText
}

// jsonSpace is the whitespace JSON allows around values
const jsonSpace = " \t\r\n"

func prettyJSON(body []byte) (string, bool) {
	if !json.Valid(body) {
		return "", false
	}

	// Indent drops leading JSON whitespace but copies trailing whitespace
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return "", false
	}
	return string(bytes.TrimRight(out.Bytes(), jsonSpace)), true
}

func binaryPreview(body []byte) string {
	n := min(len(body), binaryPreviewBytes)

	var b strings.Builder
	fmt.Fprintf(&b, "Binary data (%d bytes): [", len(body))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(int(body[i])))
	}
	if len(body) > binaryPreviewBytes {
		b.WriteString("...")
	}
	b.WriteByte(']')
	return b.String()
}
