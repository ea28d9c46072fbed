package models

import (
	"sort"
	"time"
)

// UploadRecord is one entry of the upload history as returned by the backend
type UploadRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
	CSVURL     *string   `json:"csv_url"`
	Summary    *Summary  `json:"summary_json,omitempty"`
}

// HasCSV reports whether the record carries a usable csv_url
func (r UploadRecord) HasCSV() bool {
	return r.CSVURL != nil && *r.CSVURL != ""
}

// Summary holds the server-computed statistics for one uploaded CSV file
type Summary struct {
	Total            int                `json:"total"`
	TypeDistribution map[string]int     `json:"type_distribution"`
	Averages         map[string]float64 `json:"averages"`
}

// TypeLabels returns the type_distribution keys in a stable order
func (s *Summary) TypeLabels() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.TypeDistribution)
}

// AverageFields returns the averages keys in a stable order
func (s *Summary) AverageFields() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.Averages)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TableRow maps a column header to its cell. A short CSV line leaves the
// trailing headers absent rather than empty.
type TableRow map[string]string

// Table is the parsed content of one history record's CSV file
type Table struct {
	Headers []string
	Rows    []TableRow
}

// Empty reports whether the table holds no data rows
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}
