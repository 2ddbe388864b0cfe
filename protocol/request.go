package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Request is a captured webhook request as exchanged over the HTTP API
type Request struct {
	ID      uint64   `json:"id"`
	TsMs    int64    `json:"ts_ms"`
	Method  string   `json:"method"`
	Path    string   `json:"path"`
	Headers []Header `json:"headers"`
	Body    Body     `json:"body"`
}

// Time returns the arrival time of the request
func (r *Request) Time() time.Time {
	return time.UnixMilli(r.TsMs)
}

// LatestResponse is the payload of GET /latest
type LatestResponse struct {
	Count int       `json:"count"`
	Items []Request `json:"items"`
}

// Header is a single header line. On the wire it is a [name, value] pair.
type Header struct {
	Name  string
	Value string
}

func (h Header) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{h.Name, h.Value})
}

func (h *Header) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("invalid header: expected [name, value], got %d elements", len(pair))
	}
	h.Name, h.Value = pair[0], pair[1]
	return nil
}

// Body holds the raw request body. It is encoded as a JSON array of byte
// values rather than base64 so that any client can read it without decoding.
type Body []byte

func (b Body) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(b)*4 + 2)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *Body) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = nil
		return nil
	}

	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}

	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("invalid body: byte %d out of range (%d)", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
