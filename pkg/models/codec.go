package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CodecVersion is the version written by the encoders.
const CodecVersion = 1

const (
	KindJournalEntry = "journal_entry"
	KindSchedule     = "schedule"
)

var ErrUnsupportedVersion = errors.New("unsupported codec version")

type envelope struct {
	V    int             `json:"v"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encode(kind string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return json.Marshal(envelope{V: CodecVersion, Kind: kind, Data: data})
}

func decode(b []byte, kind string, v interface{}) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	if env.Kind != kind {
		return fmt.Errorf("decode %s: got kind %q", kind, env.Kind)
	}
	switch env.V {
	case 1:
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("decode %s v1: %w", kind, err)
		}
		return nil
	}
	return fmt.Errorf("decode %s v%d: %w", kind, env.V, ErrUnsupportedVersion)
}

func EncodeEntry(e JournalEntry) ([]byte, error) {
	return encode(KindJournalEntry, e)
}

func DecodeEntry(b []byte) (JournalEntry, error) {
	var e JournalEntry
	err := decode(b, KindJournalEntry, &e)
	return e, err
}

func EncodeSchedule(s Schedule) ([]byte, error) {
	return encode(KindSchedule, s)
}

func DecodeSchedule(b []byte) (Schedule, error) {
	var s Schedule
	err := decode(b, KindSchedule, &s)
	return s, err
}
