// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// naiveLayout matches timestamps written without a zone by earlier
// deployments. They are interpreted in local time.
const naiveLayout = "2006-01-02T15:04:05"

// Timestamp is a time that serializes as RFC 3339 and also parses naive
// ISO-8601 values.
type Timestamp struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Format(time.RFC3339Nano))), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return oops.Code("RECORD_INVALID_TIME").Wrap(err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses RFC 3339 or naive ISO-8601 timestamps.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(naiveLayout, s, time.Local)
	if err != nil {
		return time.Time{}, oops.Code("RECORD_INVALID_TIME").With("value", s).Wrap(err)
	}
	return ts, nil
}

type userRecord struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	Role         Role       `json:"role,omitempty"`
	CreatedAt    Timestamp  `json:"created_at"`
	UpdatedAt    *Timestamp `json:"updated_at,omitempty"`
}

type tokenRecord struct {
	Username  string    `json:"username"`
	IssuedAt  Timestamp `json:"created_at"`
	ExpiresAt Timestamp `json:"expires_at"`
}

// EncodeUser serializes a user record.
func EncodeUser(u *User) ([]byte, error) {
	rec := userRecord{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CreatedAt:    Timestamp{u.CreatedAt},
	}
	if u.UpdatedAt != nil {
		rec.UpdatedAt = &Timestamp{*u.UpdatedAt}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, oops.Code("RECORD_ENCODE_FAILED").With("username", u.Username).Wrap(err)
	}
	return data, nil
}

// DecodeUser parses a user record stored under key. A record without a
// username takes the key; a record without a role is a plain user. An
// unknown role is a decode failure.
func DecodeUser(key string, data []byte) (*User, error) {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("RECORD_DECODE_FAILED").With("username", key).Wrap(err)
	}
	if rec.Username == "" {
		rec.Username = key
	}
	if rec.Role == "" {
		rec.Role = RoleUser
	}
	if !rec.Role.Valid() {
		return nil, oops.Code("RECORD_DECODE_FAILED").
			With("username", key).
			With("role", string(rec.Role)).
			Errorf("unknown role")
	}
	u := &User{
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		Role:         rec.Role,
		CreatedAt:    rec.CreatedAt.Time,
	}
	if rec.UpdatedAt != nil && !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt.Time
		u.UpdatedAt = &updated
	}
	return u, nil
}

// EncodeToken serializes a token record.
func EncodeToken(t *Token) ([]byte, error) {
	data, err := json.Marshal(tokenRecord{
		Username:  t.Username,
		IssuedAt:  Timestamp{t.IssuedAt},
		ExpiresAt: Timestamp{t.ExpiresAt},
	})
	if err != nil {
		return nil, oops.Code("RECORD_ENCODE_FAILED").With("username", t.Username).Wrap(err)
	}
	return data, nil
}

// DecodeToken parses a token record. Records missing the owner or the
// expiry are rejected.
func DecodeToken(data []byte) (*Token, error) {
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("RECORD_DECODE_FAILED").Wrap(err)
	}
	if rec.Username == "" || rec.ExpiresAt.IsZero() {
		return nil, oops.Code("RECORD_DECODE_FAILED").Errorf("token record is incomplete")
	}
	return &Token{
		Username:  rec.Username,
		IssuedAt:  rec.IssuedAt.Time,
		ExpiresAt: rec.ExpiresAt.Time,
	}, nil
}
