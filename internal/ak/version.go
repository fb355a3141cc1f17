package ak

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// VersionRecord is the published version of the store.
type VersionRecord struct {
	CurrentVersion      int64
	CurrentVersionDate  *time.Time
	PreviousVersion     int64
	PreviousVersionDate *time.Time
}

// Next returns the record that follows r when a transaction commits at now.
func (r VersionRecord) Next(now time.Time) VersionRecord {
	return VersionRecord{
		CurrentVersion:      r.CurrentVersion + 1,
		CurrentVersionDate:  &now,
		PreviousVersion:     r.CurrentVersion,
		PreviousVersionDate: r.CurrentVersionDate,
	}
}

// Timestamp is an ISO-8601 time in the version document. It is written as
// RFC 3339 and also read in the zone-less form older documents carry.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
