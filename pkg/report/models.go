package report

import (
	"encoding/json"
	"time"
)

// Row is the persisted form of a report. Every logical database is its own
// table with this schema; (key, name) is the primary key.
type Row struct {
	Key       string    `gorm:"column:key;primaryKey;size:64"`
	Name      string    `gorm:"column:name;primaryKey;size:128"`
	Report    []byte    `gorm:"column:report;not null"`
	SvnRev    int       `gorm:"column:svn_rev"`
	Timestamp time.Time `gorm:"column:timestamp;autoUpdateTime"`
}

// Payload holds the results of one machine for one batch, by suite and run.
type Payload map[string]map[string]json.RawMessage

// Add records the result of run in suite, replacing an earlier one.
func (p Payload) Add(suite, run string, result json.RawMessage) {
	if p[suite] == nil {
		p[suite] = make(map[string]json.RawMessage)
	}

	p[suite][run] = result
}

// Report is the results a machine reported for a batch.
type Report struct {
	DB        string    `json:"db"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	SvnRev    int       `json:"svn_rev"`
	Report    Payload   `json:"report"`
	Timestamp time.Time `json:"timestamp"`
}
