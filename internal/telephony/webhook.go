package telephony

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TranscriptWebhook is the body the call scenario posts when a call ends.
// Only the fields the backend consumes are decoded.
type TranscriptWebhook struct {
	CallID          string      `json:"call_id"`
	Phone           string      `json:"phone"`
	DurationSeconds float64     `json:"duration_seconds"`
	Transcript      Utterances  `json:"transcript"`
	RawText         string      `json:"raw_text"`
}

// Utterance is one turn of the conversation. Scenarios send either an
// object or a preformatted "Role: text" string; the latter has no Role.
type Utterance struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp any    `json:"timestamp,omitempty"`
}

func (u *Utterance) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*u = Utterance{Text: s}
		return nil
	}
	type plain Utterance
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("utterance: %w", err)
	}
	*u = Utterance(p)
	return nil
}

// Utterances is the transcript field: an array of utterances or a bare string.
type Utterances []Utterance

func (us *Utterances) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			*us = nil
		} else {
			*us = Utterances{{Text: s}}
		}
		return nil
	}
	var list []Utterance
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	*us = list
	return nil
}

// ParseTranscriptWebhook decodes a JSON webhook body.
func ParseTranscriptWebhook(r *http.Request) (TranscriptWebhook, error) {
	var w TranscriptWebhook
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	if err := dec.Decode(&w); err != nil {
		return TranscriptWebhook{}, fmt.Errorf("decode transcript webhook: %w", err)
	}
	w.CallID = strings.TrimSpace(w.CallID)
	w.Phone = strings.TrimSpace(w.Phone)
	if w.DurationSeconds < 0 {
		w.DurationSeconds = 0
	}
	return w, nil
}

// Text returns the transcript as plain text. raw_text wins when present;
// otherwise utterances are rendered one per line as "ROLE: text", or verbatim
// when they carry no role.
func (w TranscriptWebhook) Text() string {
	if strings.TrimSpace(w.RawText) != "" {
		return w.RawText
	}
	lines := make([]string, 0, len(w.Transcript))
	for _, u := range w.Transcript {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		role := strings.ToUpper(strings.TrimSpace(u.Role))
		if role == "" {
			lines = append(lines, text)
			continue
		}
		lines = append(lines, role+": "+text)
	}
	return strings.Join(lines, "\n")
}
