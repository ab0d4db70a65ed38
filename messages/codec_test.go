package messages

import (
	"errors"
	"testing"
)

func TestDecodeSimpleFrames(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  Frame
	}{
		{"connected", `{"type":"connected"}`, ConnectedFrame{}},
		{"pong", `{"type":"pong"}`, PongFrame{}},
		{"session changed", `{"type":"session_changed"}`, SessionChangedFrame{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.input))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Decode = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeStatusAndError(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"status","message":"reconnecting"}`))
	if err != nil {
		t.Fatalf("Decode status failed: %v", err)
	}
	status, ok := frame.(StatusFrame)
	if !ok || status.Message != "reconnecting" {
		t.Fatalf("unexpected status frame: %#v", frame)
	}

	frame, err = Decode([]byte(`{"type":"error","error":{"code":"E1","message":"boom"}}`))
	if err != nil {
		t.Fatalf("Decode error failed: %v", err)
	}
	if ef, ok := frame.(ErrorFrame); !ok || ef.Message != "boom" {
		t.Fatalf("unexpected error frame: %#v", frame)
	}
}

func TestDecodeBareRelayError(t *testing.T) {
	frame, err := Decode([]byte(`{"error":"gateway connection failed: refused"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ef, ok := frame.(ErrorFrame)
	if !ok {
		t.Fatalf("expected ErrorFrame, got %T", frame)
	}
	if ef.Message != "gateway connection failed: refused" {
		t.Fatalf("Message = %q", ef.Message)
	}
}

func TestDecodeMalformedIsDropped(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"type":`,
		`[]`,
		`{}`,
		`{"type":"event","event":"chat","payload":"oops"}`,
	}
	for _, input := range inputs {
		if _, err := Decode([]byte(input)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformedFrame", input, err)
		}
	}

	if _, err := Decode([]byte(`{"type":"mystery"}`)); !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("unknown type error = %v, want ErrUnknownFrame", err)
	}
	if _, err := Decode([]byte(`{"type":"event","event":"chat","payload":{"state":"weird"}}`)); !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("unknown chat state error = %v, want ErrUnknownFrame", err)
	}
}

func TestDecodeResponseRunID(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"res","id":"req-1","ok":true,"payload":{"runId":"run-9"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res := frame.(ResponseFrame)
	if res.ID != "req-1" || !res.OK || res.RunID != "run-9" {
		t.Fatalf("unexpected response: %#v", res)
	}
	if res.HasHistory {
		t.Fatalf("HasHistory should be false without messages")
	}
}

func TestDecodeResponseHistory(t *testing.T) {
	input := `{"type":"res","id":"h","ok":true,"payload":{"messages":[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":[{"type":"text","text":"hello"}]},
		{"role":"tool","content":"ran"}
	]}}`
	frame, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res := frame.(ResponseFrame)
	if !res.HasHistory || len(res.History) != 3 {
		t.Fatalf("unexpected history: %#v", res.History)
	}
	if res.History[1].Role != "assistant" || res.History[1].Text != "hello" {
		t.Fatalf("unexpected assistant entry: %#v", res.History[1])
	}
}

func TestDecodeResponseError(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"res","id":"x","ok":false,"error":{"code":"BUSY","message":"agent busy"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res := frame.(ResponseFrame)
	if res.OK || res.Error == nil || res.Error.Code != "BUSY" || res.Error.Message != "agent busy" {
		t.Fatalf("unexpected response: %#v", res)
	}
}

func TestDecodeChatEvents(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"event","event":"chat","payload":{"state":"delta","message":"ab"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	chat := frame.(ChatFrame)
	if chat.State != ChatDelta || chat.Text != "ab" {
		t.Fatalf("unexpected chat frame: %#v", chat)
	}

	frame, err = Decode([]byte(`{"type":"event","event":"chat","payload":{"state":"final","message":{"role":"assistant","content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"done"}]}}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	chat = frame.(ChatFrame)
	if chat.State != ChatFinal || chat.Text != "done" || chat.Thinking != "hmm" {
		t.Fatalf("unexpected final frame: %#v", chat)
	}
}

func TestDecodeOtherEventsForwarded(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"event","event":"presence","payload":{"who":"x"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ev, ok := frame.(EventFrame)
	if !ok || ev.Event != "presence" || string(ev.Payload) != `{"who":"x"}` {
		t.Fatalf("unexpected event frame: %#v", frame)
	}
}

func TestEncodeRequests(t *testing.T) {
	data, err := Encode(NewAbortRequest())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"action":"abort"}` {
		t.Fatalf("abort = %s", data)
	}

	data, err = Encode(NewSendRequest("id-1", "hello"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"action":"send","id":"id-1","message":"hello"}` {
		t.Fatalf("send = %s", data)
	}
}
