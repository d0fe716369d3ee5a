package pddikti

import (
	"encoding/json"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// All registry responses wrap their payload in a top-level "result" envelope.
// ══════════════════════════════════════════════════════════════════════════════

// flexID decodes identifiers the registry returns either as JSON strings or
// as bare numbers.
type flexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "null" {
		trimmed = ""
	}
	*f = flexID(trimmed)
	return nil
}

// sessionDataDTO is the session payload inside login and setlogin responses.
type sessionDataDTO struct {
	UserID flexID `json:"i_iduser"`
	UnitID flexID `json:"i_idunit"`
	Token  string `json:"pm"`
}

// sessionEnvelopeDTO is the envelope of login and setlogin responses.
type sessionEnvelopeDTO struct {
	Result struct {
		SessionData sessionDataDTO `json:"session_data"`
	} `json:"result"`
}

// searchEnvelopeDTO is the envelope of search responses.
type searchEnvelopeDTO struct {
	Result struct {
		Data []SearchResult `json:"data"`
	} `json:"result"`
}

// detailEnvelopeDTO is the envelope of detail responses.
type detailEnvelopeDTO struct {
	Result StudentDetail `json:"result"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC TYPES
// ══════════════════════════════════════════════════════════════════════════════

// AuthSession is the product of a completed login handshake. It is produced
// atomically: either every field is populated or no session exists at all.
type AuthSession struct {
	UserID    string
	OrgID     string
	Token     string
	CreatedAt time.Time
}

// SearchResult is one row of a student keyword search. The registry owns the
// meaning of these fields; the client only passes them through.
type SearchResult struct {
	RegistrationID string `json:"id_reg_pd"`
	Name           string `json:"nm_pd"`
	NIM            string `json:"nipd"`
	Institution    string `json:"namapt"`
	Program        string `json:"namaprodi"`
}

// StudentDetail is the full record for one registration id, kept opaque.
type StudentDetail map[string]json.RawMessage

// StringField decodes a string-valued field of the detail record, returning
// "" when the field is absent or not a string.
func (d StudentDetail) StringField(key string) string {
	raw, ok := d[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.Trim(string(raw), `"`)
	}
	return s
}
