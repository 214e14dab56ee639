package asr

import (
	"testing"
)

func TestParseEvent_PlainText(t *testing.T) {
	r, ok, err := parseEvent([]byte(`{"text":"hello world"}`))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a foldable result")
	}
	if r.Text != "hello world" {
		t.Errorf("expected 'hello world', got %q", r.Text)
	}
	if !r.Final {
		t.Error("expected plain text events to be final")
	}
}

func TestParseEvent_NonSuccessCode(t *testing.T) {
	_, ok, err := parseEvent([]byte(`{"text":"ignored","code":4008,"message":"idle too long"}`))

	if err == nil {
		t.Fatal("expected an error for non-success code")
	}
	if ok {
		t.Error("non-success events must not be foldable")
	}
}

func TestParseEvent_CodeZeroIsSuccess(t *testing.T) {
	r, ok, err := parseEvent([]byte(`{"text":"fine","code":0}`))

	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if r.Text != "fine" {
		t.Errorf("expected 'fine', got %q", r.Text)
	}
}

func TestParseEvent_SliceTypes(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantOK    bool
		wantFinal bool
		wantText  string
	}{
		{
			"final slice",
			`{"text":"","result":{"slice_type":2,"voice_text_str":"hello world","start_time":0,"end_time":1200},"voice_id":"v1"}`,
			true, true, "hello world",
		},
		{
			"interim slice",
			`{"text":"","result":{"slice_type":1,"voice_text_str":"hello wor"}}`,
			true, false, "hello wor",
		},
		{
			"begin slice without text",
			`{"result":{"slice_type":0,"voice_text_str":""}}`,
			false, false, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok, err := parseEvent([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if r.Final != tt.wantFinal {
				t.Errorf("Final = %v, want %v", r.Final, tt.wantFinal)
			}
			if r.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", r.Text, tt.wantText)
			}
		})
	}
}

func TestParseEvent_SliceTextOverridesTop(t *testing.T) {
	r, ok, err := parseEvent([]byte(`{"text":"outer","result":{"slice_type":2,"voice_text_str":"inner"}}`))

	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if r.Text != "inner" {
		t.Errorf("expected nested text to win, got %q", r.Text)
	}
}

func TestParseEvent_MalformedJSON(t *testing.T) {
	_, ok, err := parseEvent([]byte(`{"text":`))

	if err == nil {
		t.Fatal("expected an error for malformed payload")
	}
	if ok {
		t.Error("malformed events must not be foldable")
	}
}

func TestParseEvent_UtteranceMetadata(t *testing.T) {
	r, ok, err := parseEvent([]byte(`{"result":{"slice_type":2,"voice_text_str":"ok","start_time":500,"end_time":900},"voice_id":"utt-7","message_id":"m-1"}`))

	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if r.UtteranceID != "utt-7" {
		t.Errorf("expected utterance id 'utt-7', got %q", r.UtteranceID)
	}
	if r.StartMs != 500 || r.EndMs != 900 {
		t.Errorf("expected offsets 500/900, got %d/%d", r.StartMs, r.EndMs)
	}
}
