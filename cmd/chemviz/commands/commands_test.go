package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chemviz/chemviz/internal/fakeapi"
)

type harness struct {
	t         *testing.T
	srv       *fakeapi.Server
	dir       string
	tokenFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := fakeapi.Start()
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	return &harness{
		t:         t,
		srv:       srv,
		dir:       dir,
		tokenFile: filepath.Join(dir, "token"),
	}
}

// run executes one command line against the fake backend and returns stdout
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	out, _, err := h.runApp(args...)
	return out, err
}

func (h *harness) runApp(args ...string) (string, *app, error) {
	h.t.Helper()
	root, a := newRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{
		"--config", filepath.Join(h.dir, "config.toml"),
		"--api-base", h.srv.URL,
		"--token-file", h.tokenFile,
		"--log-level", "error",
	}, args...))
	err := run(context.Background(), root, a)
	return out.String(), a, err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%v failed: %v", args, err)
	}
	return out
}

func (h *harness) writeCSV(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

const equipmentCSV = `Equipment Name,Type,Flowrate,Pressure,Temperature
Pump-1,Pump,120,5.2,110
Valve-1,Valve,67,4.1,110
`

func TestLoginStatusLogout(t *testing.T) {
	h := newHarness(t)
	token := h.srv.AddUser("alice", "secret")

	out := h.mustRun("status")
	if !strings.Contains(out, "Anonymous") {
		t.Errorf("Expected anonymous status, got:\n%s", out)
	}

	out = h.mustRun("login", "-u", "alice", "-p", "secret")
	if !strings.Contains(out, "Logged in as alice") {
		t.Errorf("Unexpected login output: %q", out)
	}
	data, err := os.ReadFile(h.tokenFile)
	if err != nil {
		t.Fatalf("Token file not written: %v", err)
	}
	if string(data) != token {
		t.Errorf("Token file = %q, want %q", data, token)
	}

	out = h.mustRun("status")
	if !strings.Contains(out, "Authenticated") {
		t.Errorf("Expected authenticated status, got:\n%s", out)
	}
	if !strings.Contains(out, h.srv.URL) || !strings.Contains(out, "--api-base") {
		t.Errorf("Status should name the backend and its source, got:\n%s", out)
	}

	h.mustRun("logout")
	if _, err := os.Stat(h.tokenFile); !os.IsNotExist(err) {
		t.Errorf("Token file should be gone after logout, stat err = %v", err)
	}
}

func TestFailedCommandStillCleansUp(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")

	_, a, err := h.runApp("summary", "99")
	if err == nil {
		t.Fatal("Expected a missing summary to fail")
	}
	if a.ws == nil || !a.closed {
		t.Error("A failed command should still close the workspace")
	}
	a.close()
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")

	_, err := h.run("login", "-u", "alice", "-p", "wrong")
	if err == nil {
		t.Fatal("Expected login with a bad password to fail")
	}
	if !strings.HasPrefix(err.Error(), "login failed: ") {
		t.Errorf("Unexpected error: %v", err)
	}
	if _, err := os.Stat(h.tokenFile); !os.IsNotExist(err) {
		t.Error("A failed login must not write a token")
	}
}

func TestRegisterLogsIn(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "-u", "bob", "-p", "pw")
	if !strings.Contains(out, "Registered and logged in as bob") {
		t.Errorf("Unexpected output: %q", out)
	}
	out = h.mustRun("history")
	if !strings.Contains(out, "No uploads yet") {
		t.Errorf("Fresh account should have no history, got:\n%s", out)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{
		{"history"},
		{"summary", "1"},
		{"report", "1"},
		{"upload", "x.csv"},
	} {
		_, err := h.run(args...)
		if err == nil || !strings.Contains(err.Error(), "not logged in") {
			t.Errorf("%v: expected a not logged in error, got %v", args, err)
		}
	}
	if h.srv.Hits(fakeapi.RouteHistory) != 0 {
		t.Error("No request should reach the backend while anonymous")
	}
}

func TestUploadHistorySummaryReport(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")

	path := h.writeCSV("plant.csv", equipmentCSV)
	out := h.mustRun("upload", path)
	if !strings.Contains(out, "Uploaded plant.csv") || !strings.Contains(out, "Total rows: 2") {
		t.Errorf("Unexpected upload output:\n%s", out)
	}

	out = h.mustRun("history")
	if !strings.Contains(out, "1. plant.csv") {
		t.Errorf("History should list the upload, got:\n%s", out)
	}

	out = h.mustRun("summary", "1")
	if !strings.Contains(out, "Flowrate") || !strings.Contains(out, "93.50") {
		t.Errorf("Summary should include the Flowrate average, got:\n%s", out)
	}

	reports := filepath.Join(h.dir, "reports")
	out = h.mustRun("report", "1", "--dir", reports)
	saved := filepath.Join(reports, "report_1.pdf")
	if !strings.Contains(out, saved) {
		t.Errorf("Report output should name %s, got %q", saved, out)
	}
	data, err := os.ReadFile(saved)
	if err != nil {
		t.Fatalf("Report not saved: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("Saved report is not a PDF")
	}

	_, err = h.run("report", "99", "--dir", reports)
	if err == nil || err.Error() != "Download failed: Not found." {
		t.Errorf("Unexpected error for a missing report: %v", err)
	}
	if _, err := os.Stat(filepath.Join(reports, "report_99.pdf")); !os.IsNotExist(err) {
		t.Error("A failed download must not leave a file")
	}
}

func TestTableAndExport(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")
	h.mustRun("upload", h.writeCSV("plant.csv", equipmentCSV))

	out := h.mustRun("table", "1")
	for _, want := range []string{"Equipment Name", "Pump-1", "Valve-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Table output missing %q:\n%s", want, out)
		}
	}

	xlsx := filepath.Join(h.dir, "plant.xlsx")
	h.mustRun("table", "1", "--xlsx", xlsx)
	if info, err := os.Stat(xlsx); err != nil || info.Size() == 0 {
		t.Errorf("Workbook not written: %v", err)
	}

	if _, err := h.run("table", "42"); err == nil {
		t.Error("Expected an error for an id outside the history")
	}
}

func TestUploadCheckRejectsLocally(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")

	path := h.writeCSV("bad.csv", "Equipment Name,Type\nPump-1,Pump\n")
	_, err := h.run("upload", "--check", path)
	if err == nil || !strings.Contains(err.Error(), "Missing required columns") {
		t.Errorf("Expected a local validation error, got %v", err)
	}
	if h.srv.Hits(fakeapi.RouteUpload) != 0 {
		t.Error("A rejected file must not be uploaded")
	}
}

func TestChartWritesPNGs(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")
	h.mustRun("upload", h.writeCSV("plant.csv", equipmentCSV))

	outDir := filepath.Join(h.dir, "charts")
	out := h.mustRun("chart", "--latest", "--out-dir", outDir)
	if !strings.Contains(out, "Type distribution") {
		t.Errorf("Expected a text chart, got:\n%s", out)
	}
	for _, name := range []string{"type_distribution_1.png", "averages_1.png"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Errorf("%s not written: %v", name, err)
			continue
		}
		if !bytes.HasPrefix(data, []byte("\x89PNG")) {
			t.Errorf("%s is not a PNG", name)
		}
	}

	if _, err := h.run("chart"); err == nil {
		t.Error("chart without an id or --latest should fail")
	}
}

func TestShowRendersMarkdown(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")
	h.mustRun("upload", h.writeCSV("plant.csv", equipmentCSV))

	out := h.mustRun("show", "--style", "notty")
	if !strings.Contains(out, "plant.csv") {
		t.Errorf("show should list the upload, got:\n%s", out)
	}
	out = h.mustRun("show", "1", "--style", "notty")
	if !strings.Contains(out, "Averages") || !strings.Contains(out, "Pump") {
		t.Errorf("show <id> should render the summary, got:\n%s", out)
	}
}

func TestDebugCommands(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.mustRun("login", "-u", "alice", "-p", "secret")

	out := h.mustRun("debug", "config", "--write")
	if !strings.Contains(out, "base_url") || !strings.Contains(out, h.srv.URL) {
		t.Errorf("Expected the effective base url in:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "config.toml")); err != nil {
		t.Errorf("--write should save the config: %v", err)
	}

	out = h.mustRun("debug", "request", "/history/")
	if !strings.Contains(out, "Status: 200") {
		t.Errorf("Unexpected debug request output:\n%s", out)
	}
	out = h.mustRun("debug", "request", "/summary/5/")
	if !strings.Contains(out, "Status: 404") {
		t.Errorf("Expected the 404 to be printed, got:\n%s", out)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSummaryMarkdown(t *testing.T) {
	doc := summaryMarkdown("Upload 1", nil)
	if !strings.Contains(doc, "No summary available") {
		t.Errorf("Unexpected doc for nil summary: %q", doc)
	}
	if got := escapeCell("a|b"); got != `a\|b` {
		t.Errorf("escapeCell = %q", got)
	}
}
