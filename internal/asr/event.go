package asr

import (
	"encoding/json"
	"fmt"
)

// Slice discriminator values used by the backend: a recognition result
// is re-sent as it grows and only the final slice is authoritative.
const (
	sliceTypeBegin   = 0
	sliceTypeInterim = 1
	sliceTypeFinal   = 2
)

const codeSuccess = 0

// wireSlice is the nested result object carried by richer events.
type wireSlice struct {
	SliceType    *int   `json:"slice_type"`
	VoiceTextStr string `json:"voice_text_str"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
}

// wireEvent is the JSON shape recognition backends push over the
// socket and controller variants.
type wireEvent struct {
	Text      string     `json:"text"`
	Code      *int       `json:"code,omitempty"`
	Message   string     `json:"message,omitempty"`
	Result    *wireSlice `json:"result,omitempty"`
	VoiceID   string     `json:"voice_id,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
}

// parseEvent decodes one backend payload. ok is false when the event
// carries nothing foldable (empty text, begin slices); err is non-nil
// for malformed or non-success payloads, which are discarded without
// touching the connection.
func parseEvent(data []byte) (r Result, ok bool, err error) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Result{}, false, fmt.Errorf("asr: malformed event: %w", err)
	}

	if ev.Code != nil && *ev.Code != codeSuccess {
		return Result{}, false, fmt.Errorf("asr: backend error code %d: %s", *ev.Code, ev.Message)
	}

	r = Result{
		Text:        ev.Text,
		Final:       true,
		UtteranceID: ev.VoiceID,
	}
	if ev.Result != nil {
		if ev.Result.VoiceTextStr != "" {
			r.Text = ev.Result.VoiceTextStr
		}
		r.StartMs = ev.Result.StartTime
		r.EndMs = ev.Result.EndTime
		if ev.Result.SliceType != nil {
			r.Final = *ev.Result.SliceType == sliceTypeFinal
		}
	}
	if r.Text == "" {
		return Result{}, false, nil
	}
	return r, true, nil
}
