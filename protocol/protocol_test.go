package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRequest_UnmarshalWireShape(t *testing.T) {
	data := `{
		"id": 7,
		"ts_ms": 1700000000000,
		"method": "POST",
		"path": "/webhook?src=github",
		"headers": [["content-type", "application/json"], ["x-hub", "a=b"]],
		"body": [123, 34, 97, 34, 58, 49, 125]
	}`

	var req Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if req.ID != 7 {
		t.Errorf("ID = %d, want 7", req.ID)
	}
	if req.Method != "POST" {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if len(req.Headers) != 2 {
		t.Fatalf("len(Headers) = %d, want 2", len(req.Headers))
	}
	if req.Headers[1].Name != "x-hub" || req.Headers[1].Value != "a=b" {
		t.Errorf("Headers[1] = %+v, want {x-hub a=b}", req.Headers[1])
	}
	if string(req.Body) != `{"a":1}` {
		t.Errorf("Body = %q, want %q", req.Body, `{"a":1}`)
	}
	if got := req.Time().UnixMilli(); got != 1700000000000 {
		t.Errorf("Time() = %d, want 1700000000000", got)
	}
}

func TestBody_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		body Body
		want string
	}{
		{name: "nil", body: nil, want: "[]"},
		{name: "empty", body: Body{}, want: "[]"},
		{name: "bytes", body: Body("hi"), want: "[104,105]"},
		{name: "high bytes", body: Body{0, 255}, want: "[0,255]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.body)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBody_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "null", data: "null", want: ""},
		{name: "empty array", data: "[]", want: ""},
		{name: "bytes", data: "[104, 105]", want: "hi"},
		{name: "out of range", data: "[256]", wantErr: true},
		{name: "negative", data: "[-1]", wantErr: true},
		{name: "base64 string", data: `"aGk="`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Body
			err := json.Unmarshal([]byte(tt.data), &b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(b) != tt.want {
				t.Errorf("Body = %q, want %q", b, tt.want)
			}
		})
	}
}

func TestHeader_UnmarshalJSON_Invalid(t *testing.T) {
	tests := []string{
		`["only-name"]`,
		`["a", "b", "c"]`,
		`{"name": "a"}`,
	}

	for _, data := range tests {
		var h Header
		if err := json.Unmarshal([]byte(data), &h); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", data)
		}
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MsgNotify, Notification{Level: "error", Message: "Failed to load requests"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"notify"`) {
		t.Errorf("encoded message missing type: %s", data)
	}

	var decoded ViewerMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	var n Notification
	if err := decoded.Decode(&n); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n.Message != "Failed to load requests" {
		t.Errorf("Message = %q, want %q", n.Message, "Failed to load requests")
	}
}

func TestNewMessage_NoPayload(t *testing.T) {
	msg, err := NewMessage(MsgRefresh, nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if msg.Payload != nil {
		t.Errorf("Payload = %s, want nil", msg.Payload)
	}

	var v Visibility
	if err := msg.Decode(&v); err == nil {
		t.Error("Decode of empty payload succeeded, want error")
	}
}
