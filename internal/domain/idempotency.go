package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HeaderPair is one response header line. Values are kept as raw bytes so
// that a replay reproduces the original header exactly.
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// HeaderPairs is an ordered list of header lines stored as a JSON column.
type HeaderPairs []HeaderPair

// Value implements driver.Valuer.
func (h HeaderPairs) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (h *HeaderPairs) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), h)
	case []byte:
		return json.Unmarshal(v, h)
	default:
		return fmt.Errorf("HeaderPairs: unsupported source %T", src)
	}
}

// Idempotency records the outcome of a publish request, keyed by
// (user_id, idempotency_key). A row whose ResponseStatusCode is nil is
// "in progress": its owner has claimed the key and not yet finished. Once
// the response columns are written they never change.
type Idempotency struct {
	UserID             string      `gorm:"type:char(36);primaryKey"`
	Key                string      `gorm:"column:idempotency_key;type:varchar(200);primaryKey"`
	ResponseStatusCode *int        `gorm:"type:smallint"`
	ResponseHeaders    HeaderPairs `gorm:"type:text"`
	ResponseBody       []byte
	CreatedAt          time.Time `gorm:"not null"`
	ExpiresAt          time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Completed reports whether the response has been recorded.
func (i Idempotency) Completed() bool { return i.ResponseStatusCode != nil }
