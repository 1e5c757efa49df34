package stobix

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// NonceResponse is the reply of /v1/auth/nonce
type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// VerifyResponse is the reply of /v1/auth/web3/verify
type VerifyResponse struct {
	Token string `json:"token"`
}

// Task is one loyalty task; ClaimedAt is nil while unclaimed
type Task struct {
	ID        string    `json:"id"`
	ClaimedAt Timestamp `json:"claimedAt"`
}

// User carries the mining timestamps and point balance
type User struct {
	Points          float64   `json:"points"`
	MiningStartedAt Timestamp `json:"miningStartedAt"`
	MiningClaimAt   Timestamp `json:"miningClaimAt"`
}

// Loyalty is the reply of GET /v1/loyalty
type Loyalty struct {
	User  User   `json:"user"`
	Tasks []Task `json:"tasks"`
}

// ClaimResponse is the reply of /v1/loyalty/tasks/claim
type ClaimResponse struct {
	Points float64 `json:"points"`
}

// MineResponse is the reply of /v1/loyalty/points/mine
type MineResponse struct {
	Amount    float64   `json:"amount"`
	StartedAt Timestamp `json:"startedAt"`
	ClaimAt   Timestamp `json:"claimAt"`
}

// Timestamp is an optional instant. Any non-null JSON value marks it set;
// the instant is known when the value is an RFC 3339 or zone-less date-time
// string or a number of milliseconds since the epoch.
type Timestamp struct {
	t     time.Time
	valid bool
	known bool
}

// layouts accepted for string timestamps; zone-less values are UTC
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// At returns a set Timestamp
func At(t time.Time) Timestamp {
	return Timestamp{t: t, valid: true, known: true}
}

// IsSet reports whether a non-null value was present
func (ts Timestamp) IsSet() bool {
	return ts.valid
}

// Known reports whether the value decoded to an instant
func (ts Timestamp) Known() bool {
	return ts.known
}

// Time returns the instant; the zero time when unset or unknown
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// String formats the instant as RFC 3339, "null" or "unknown"
func (ts Timestamp) String() string {
	switch {
	case !ts.valid:
		return "null"
	case !ts.known:
		return "unknown"
	}
	return ts.t.Format(time.RFC3339)
}

// UnmarshalJSON implements json.Unmarshaler. It never fails on a
// well-formed JSON value, so one odd field cannot reject a whole reply.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	*ts = Timestamp{valid: true}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				*ts = At(t)
				return nil
			}
		}
		return nil
	}

	if ms, err := strconv.ParseFloat(string(data), 64); err == nil {
		*ts = At(time.UnixMilli(int64(ms)).UTC())
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.valid {
		return []byte("null"), nil
	}
	if !ts.known {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.t.Format(time.RFC3339Nano))
}
