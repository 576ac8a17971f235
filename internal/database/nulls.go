package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamps are stored as Unix seconds in INTEGER columns and dates as
// "2006-01-02" TEXT, matching the rest of the schema.

// DateLayout is the TEXT format of date columns
const DateLayout = "2006-01-02"

// FromUnix converts a stored Unix timestamp to a UTC time
func FromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// NullUnix converts an optional time into a nullable column value
func NullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// TimePtr converts a nullable Unix column into an optional time
func TimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromUnix(v.Int64)
	return &t
}

// NullFloat converts an optional float into a nullable column value
func NullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// FloatPtr converts a nullable REAL column into an optional float
func FloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// ParseDate parses a date column
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t for a date column
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// EncodeDetail stores a detail map as JSON text; nil maps become NULL
func EncodeDetail(detail map[string]interface{}) (sql.NullString, error) {
	if detail == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode detail: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// DecodeDetail parses a JSON detail column
func DecodeDetail(v sql.NullString) (map[string]interface{}, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var detail map[string]interface{}
	if err := json.Unmarshal([]byte(v.String), &detail); err != nil {
		return nil, fmt.Errorf("failed to decode detail: %w", err)
	}
	return detail, nil
}
