package events

import (
	"context"
	"testing"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
		{"nil config", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerUpdates != nil {
				t.Error("expected nil updates writer when disabled")
			}
			if p.writerLifecycle != nil {
				t.Error("expected nil lifecycle writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		TopicUpdates:   "transcripts.updates",
		TopicLifecycle: "transcripts.lifecycle",
		Principal:      "call-transcription-bot",
	}

	p := New(cfg)

	if p.principal != "call-transcription-bot" {
		t.Errorf("expected principal 'call-transcription-bot', got %s", p.principal)
	}
	if p.topicUpdates != "transcripts.updates" {
		t.Errorf("expected updates topic 'transcripts.updates', got %s", p.topicUpdates)
	}
	if p.topicLifecycle != "transcripts.lifecycle" {
		t.Errorf("expected lifecycle topic 'transcripts.lifecycle', got %s", p.topicLifecycle)
	}
}

func TestPublisher_PublishUpdate_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := TranscriptUpdated{
		SessionID:     "m1-c1",
		CallID:        "c1",
		Appended:      "hello world",
		TranscriptLen: 11,
		Backend:       "mock",
		Timestamp:     1000,
	}
	if err := p.PublishUpdate(context.Background(), event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishLifecycle_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	event := SessionLifecycle{
		SessionID: "m1-c1",
		CallID:    "c1",
		State:     "finished",
		Timestamp: 2000,
	}
	if err := p.PublishLifecycle(context.Background(), event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected clean close when disabled, got %v", err)
	}
}
