package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chemviz/chemviz/internal/session"
	"github.com/chemviz/chemviz/pkg/models"
)

// Message types for async operations. Seq is the model's dispatch counter
// for that kind of result; a message whose Seq is not the latest is stale.
type (
	// SessionStateMsg reports that the session store changed state
	SessionStateMsg struct {
		State session.State
	}

	// AuthDoneMsg ends a login or registration attempt
	AuthDoneMsg struct {
		Register bool
		Error    error
	}

	// HistoryLoadedMsg contains the refreshed upload history
	HistoryLoadedMsg struct {
		Seq     uint64
		Records []models.UploadRecord
	}

	// UploadDoneMsg ends an upload
	UploadDoneMsg struct {
		Seq     uint64
		Name    string
		Summary *models.Summary
		Error   error
	}

	// SummaryLoadedMsg contains the stored summary of one record
	SummaryLoadedMsg struct {
		Seq     uint64
		ID      int64
		Summary *models.Summary
		Error   error
	}

	// TableLoadedMsg contains the parsed CSV of one record
	TableLoadedMsg struct {
		Seq   uint64
		ID    int64
		Table models.Table
		Error error
	}

	// ReportSavedMsg ends a report download
	ReportSavedMsg struct {
		ID    int64
		Path  string
		Error error
	}

	// TickMsg is sent periodically for spinner animation
	TickMsg time.Time
)

func loginCmd(ctx context.Context, s Session, register bool, username, password string) tea.Cmd {
	return func() tea.Msg {
		var err error
		if register {
			err = s.Register(ctx, username, password)
		} else {
			err = s.Login(ctx, username, password)
		}
		return AuthDoneMsg{Register: register, Error: err}
	}
}

func fetchHistoryCmd(ctx context.Context, w Workspace, seq uint64) tea.Cmd {
	return func() tea.Msg {
		return HistoryLoadedMsg{Seq: seq, Records: w.FetchHistory(ctx)}
	}
}

func uploadCmd(ctx context.Context, w Workspace, seq uint64, path string) tea.Cmd {
	return func() tea.Msg {
		summary, err := w.Upload(ctx, path)
		return UploadDoneMsg{Seq: seq, Name: path, Summary: summary, Error: err}
	}
}

func fetchSummaryCmd(ctx context.Context, w Workspace, seq uint64, id int64) tea.Cmd {
	return func() tea.Msg {
		summary, err := w.FetchSummary(ctx, id)
		return SummaryLoadedMsg{Seq: seq, ID: id, Summary: summary, Error: err}
	}
}

func loadTableCmd(ctx context.Context, w Workspace, seq uint64, rec models.UploadRecord) tea.Cmd {
	return func() tea.Msg {
		table, err := w.LoadRecordTable(ctx, rec)
		return TableLoadedMsg{Seq: seq, ID: rec.ID, Table: table, Error: err}
	}
}

func downloadCmd(ctx context.Context, w Workspace, id int64, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := w.DownloadReport(ctx, id, dir)
		return ReportSavedMsg{ID: id, Path: path, Error: err}
	}
}

// tickCmd creates a ticker for spinner animation
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
