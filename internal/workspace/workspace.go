// Package workspace is the view-model behind the authenticated screen. It
// drives uploads, history, table loading and report downloads through the
// backend and keeps the latest result of each.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/chemviz/chemviz/internal/apiclient"
	"github.com/chemviz/chemviz/internal/csvtable"
	"github.com/chemviz/chemviz/internal/logging"
	"github.com/chemviz/chemviz/pkg/models"
)

// ErrCSVUnavailable is returned for a history record without a csv_url
var ErrCSVUnavailable = errors.New("CSV URL missing")

// ActionError is a user-triggered action that failed. Message is what the
// user is shown.
type ActionError struct {
	Action  string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return e.Action + " failed: " + e.Message
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Backend is the part of the API client the workspace needs
type Backend interface {
	History(ctx context.Context) ([]models.UploadRecord, error)
	Upload(ctx context.Context, name string, file io.Reader) (apiclient.UploadResponse, error)
	Summary(ctx context.Context, id int64) (apiclient.SummaryResponse, error)
	ReportPDF(ctx context.Context, id int64) ([]byte, error)
	GetRaw(ctx context.Context, ref string) (*apiclient.Response, error)
}

// Snapshot is a copy of the workspace state for rendering
type Snapshot struct {
	Summary *models.Summary
	History []models.UploadRecord
	Table   models.Table
}

// Workspace holds the latest summary, history and table
type Workspace struct {
	backend Backend
	tracker *Tracker
	logger  *slog.Logger

	mu      sync.RWMutex
	summary *models.Summary
	history []models.UploadRecord
	table   models.Table
}

// New creates an empty workspace. There is no summary until the first upload.
func New(backend Backend, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Workspace{
		backend: backend,
		tracker: NewTracker(),
		logger:  logger,
		history: []models.UploadRecord{},
	}
}

// Close cancels in-flight requests
func (w *Workspace) Close() {
	w.tracker.Close()
}

// Reset drops everything the workspace holds, as at the start of a new
// session. In-flight requests are cancelled and whatever they still return
// is discarded.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("resetting workspace", "in_flight", w.tracker.InFlight())
	w.tracker.CancelAll()
	for _, kind := range []Kind{KindHistory, KindSummary, KindTable} {
		w.tracker.Stamp(kind)
	}
	w.summary = nil
	w.history = []models.UploadRecord{}
	w.table = models.Table{}
}

// Generation returns the latest generation dispatched for kind
func (w *Workspace) Generation(kind Kind) uint64 {
	return w.tracker.Generation(kind)
}

// FetchHistory refreshes the upload history. It never fails: any error is
// logged and yields an empty list.
func (w *Workspace) FetchHistory(ctx context.Context) []models.UploadRecord {
	req, ctx, done := w.tracker.Begin(ctx, KindHistory)
	defer done()

	records, err := w.backend.History(ctx)
	if err != nil {
		w.logger.Warn("history fetch failed", "request", req.ID, "error", err)
		records = []models.UploadRecord{}
	}

	w.apply(req, func() { w.history = records })
	return records
}

// Upload sends the file at path. On success the returned summary replaces
// the current one and the history is refreshed exactly once.
func (w *Workspace) Upload(ctx context.Context, path string) (*models.Summary, error) {
	if path == "" {
		return nil, &ActionError{Action: "Upload", Message: "Choose a CSV file first"}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ActionError{Action: "Upload", Message: err.Error(), Err: err}
	}
	defer f.Close()
	return w.UploadReader(ctx, filepath.Base(path), f)
}

// UploadReader is Upload for content that is not on disk
func (w *Workspace) UploadReader(ctx context.Context, name string, r io.Reader) (*models.Summary, error) {
	req := w.tracker.Stamp(KindSummary)

	resp, err := w.backend.Upload(ctx, name, r)
	if err != nil {
		w.tracker.Abandon(req)
		w.logger.Info("upload failed", "name", name, "error", err)
		return nil, &ActionError{Action: "Upload", Message: apiclient.UserMessage(err, "unknown error"), Err: err}
	}
	w.logger.Info("uploaded", "name", name, "id", resp.ID)

	w.apply(req, func() { w.summary = resp.Summary })
	w.FetchHistory(ctx)
	return resp.Summary, nil
}

// FetchSummary loads the stored summary of an earlier upload into the
// summary slot
func (w *Workspace) FetchSummary(ctx context.Context, id int64) (*models.Summary, error) {
	if id <= 0 {
		return nil, &ActionError{Action: "Summary", Message: "No id provided"}
	}
	req, ctx, done := w.tracker.Begin(ctx, KindSummary)
	defer done()

	resp, err := w.backend.Summary(ctx, id)
	if err != nil {
		return nil, &ActionError{Action: "Summary", Message: apiclient.UserMessage(err, "unknown error"), Err: err}
	}

	w.apply(req, func() { w.summary = resp.Summary })
	return resp.Summary, nil
}

// LoadTable fetches a CSV file and replaces the table with its rows. A
// failed fetch replaces it with an empty table.
func (w *Workspace) LoadTable(ctx context.Context, csvURL string) models.Table {
	req, ctx, done := w.tracker.Begin(ctx, KindTable)
	defer done()

	var table models.Table
	resp, err := w.backend.GetRaw(ctx, csvURL)
	if err != nil {
		w.logger.Warn("csv fetch failed", "request", req.ID, "url", csvURL, "error", err)
	} else {
		table = csvtable.Parse(string(resp.Body))
	}

	w.apply(req, func() { w.table = table })
	return table
}

// LoadRecordTable loads the CSV of a history record
func (w *Workspace) LoadRecordTable(ctx context.Context, rec models.UploadRecord) (models.Table, error) {
	if !rec.HasCSV() {
		return models.Table{}, ErrCSVUnavailable
	}
	return w.LoadTable(ctx, *rec.CSVURL), nil
}

// ReportFileName is the name a downloaded report is saved under
func ReportFileName(id int64) string {
	return fmt.Sprintf("report_%d.pdf", id)
}

// DownloadReport fetches the PDF report of record id and saves it in dir.
// Nothing is written unless the backend returned the report.
func (w *Workspace) DownloadReport(ctx context.Context, id int64, dir string) (string, error) {
	if id <= 0 {
		return "", &ActionError{Action: "Download", Message: "No id provided"}
	}

	data, err := w.backend.ReportPDF(ctx, id)
	if err != nil {
		w.logger.Info("report download failed", "id", id, "error", err)
		return "", &ActionError{Action: "Download", Message: apiclient.UserMessage(err, "unknown error"), Err: err}
	}

	path := filepath.Join(dir, ReportFileName(id))
	if err := writeAtomic(path, data); err != nil {
		return "", &ActionError{Action: "Download", Message: err.Error(), Err: err}
	}
	w.logger.Info("report saved", "id", id, "path", path, "bytes", len(data))
	return path, nil
}

// Snapshot copies the current state
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	history := make([]models.UploadRecord, len(w.history))
	copy(history, w.history)

	table := models.Table{
		Headers: append([]string(nil), w.table.Headers...),
		Rows:    append([]models.TableRow(nil), w.table.Rows...),
	}
	return Snapshot{Summary: w.summary, History: history, Table: table}
}

// apply runs set under the state lock if req is still the latest of its kind
func (w *Workspace) apply(req Request, set func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.tracker.Current(req) {
		w.logger.Debug("discarding stale response", "kind", req.Kind, "generation", req.Generation)
		return false
	}
	set()
	return true
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}
