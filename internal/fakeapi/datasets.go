package fakeapi

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/chemviz/chemviz/internal/csvtable"
	"github.com/chemviz/chemviz/pkg/models"
)

const maxUploadSize = 5 * 1024 * 1024

type historyEntry struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	UploadedAt  string          `json:"uploaded_at"`
	SummaryJSON *models.Summary `json:"summary_json"`
	CSVURL      *string         `json:"csv_url"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.historyStatus
	shape := s.historyShape
	entries := s.historyLocked()
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "history unavailable"})
		return
	}

	switch shape {
	case HistorySingleObject:
		if len(entries) == 0 {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, entries[0])
	case HistoryNull:
		writeJSON(w, http.StatusOK, nil)
	default:
		writeJSON(w, http.StatusOK, entries)
	}
}

// historyLocked returns the newest datasets first, capped at HistoryLimit.
// Ids grow with upload time, so they order ties on the timestamp.
func (s *Server) historyLocked() []historyEntry {
	sorted := make([]*dataset, len(s.datasets))
	copy(sorted, s.datasets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > HistoryLimit {
		sorted = sorted[:HistoryLimit]
	}

	entries := make([]historyEntry, 0, len(sorted))
	for _, d := range sorted {
		entry := historyEntry{
			ID:          d.ID,
			Name:        d.Name,
			UploadedAt:  d.UploadedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
			SummaryJSON: d.Summary,
		}
		if d.File != "" {
			u := "/media/uploads/" + d.File
			entry.CSVURL = &u
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize + 1024); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	if header.Size > maxUploadSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("File too large. Max allowed size is %d bytes.", maxUploadSize),
		})
		return
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Only CSV files are allowed (filename must end with .csv)."})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to parse CSV: " + err.Error()})
		return
	}
	summary := summarize(string(data))

	s.mu.Lock()
	d := &dataset{
		ID:         s.nextID,
		Name:       name,
		UploadedAt: s.clock(),
		CSV:        data,
		Summary:    summary,
	}
	d.File = fmt.Sprintf("%d_%s", d.ID, name)
	s.nextID++
	s.datasets = append(s.datasets, d)
	omit := s.omitSummary
	s.mu.Unlock()

	if omit {
		writeJSON(w, http.StatusOK, map[string]any{"id": d.ID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": d.ID, "summary": summary})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	d := s.lookup(r)
	if d == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": d.ID, "name": d.Name, "summary": d.Summary})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	d := s.lookup(r)
	if d == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%d.pdf"`, d.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(ReportBytes(d.ID, d.Name))
}

// ReportBytes is the body served for a record's PDF report
func ReportBytes(id int64, name string) []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% Report for: %s (id %d)\n%%%%EOF\n", name, id))
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	file := mux.Vars(r)["file"]
	s.mu.Lock()
	var data []byte
	for _, d := range s.datasets {
		if d.File != "" && d.File == file {
			data = d.CSV
			break
		}
	}
	s.mu.Unlock()

	if data == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write(data)
}

func (s *Server) lookup(r *http.Request) *dataset {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

// summarize computes the summary the backend would: row count, the mean of
// every fully numeric column and the value counts of the Type column.
func summarize(text string) *models.Summary {
	table := csvtable.Parse(text)
	summary := &models.Summary{
		Total:            len(table.Rows),
		TypeDistribution: map[string]int{},
		Averages:         map[string]float64{},
	}

	for _, h := range table.Headers {
		sum, count, numeric := 0.0, 0, true
		for _, row := range table.Rows {
			cell, ok := row[h]
			if !ok || strings.TrimSpace(cell) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				numeric = false
				break
			}
			sum += v
			count++
		}
		if numeric && count > 0 {
			summary.Averages[h] = sum / float64(count)
		}
	}

	for _, row := range table.Rows {
		if t, ok := row["Type"]; ok {
			summary.TypeDistribution[t]++
		}
	}
	return summary
}
