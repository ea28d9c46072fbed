// Package preview checks a CSV file locally before it is uploaded. It applies
// the backend's acceptance rules and computes the summary the backend would
// return, using DuckDB to read and aggregate the file.
package preview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chemviz/chemviz/internal/db"
	"github.com/chemviz/chemviz/pkg/models"
)

// MaxUploadSize is the largest file the backend accepts
const MaxUploadSize = 5 * 1024 * 1024

// RequiredColumns must all be present in an uploaded file
var RequiredColumns = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

// NumericColumns must each hold at least one numeric value
var NumericColumns = []string{"Flowrate", "Pressure", "Temperature"}

// ValidationError is a file the backend would reject. Message matches the
// backend's wording.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Report is the outcome of a successful preview
type Report struct {
	Name    string
	Size    int64
	Columns []string
	Summary *models.Summary
}

// Previewer runs previews against one DuckDB handle
type Previewer struct {
	db *sql.DB
}

// New uses conn for all queries
func New(conn *sql.DB) *Previewer {
	return &Previewer{db: conn}
}

// Default uses the shared DuckDB instance
func Default() (*Previewer, error) {
	conn, err := db.GetDB()
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Check validates the file at path and computes its summary
func (p *Previewer) Check(ctx context.Context, path string) (*Report, error) {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > MaxUploadSize {
		return nil, &ValidationError{Message: fmt.Sprintf("File too large. Max allowed size is %d bytes.", MaxUploadSize)}
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		return nil, &ValidationError{Message: "Only CSV files are allowed (filename must end with .csv)."}
	}

	source := fmt.Sprintf("read_csv_auto(%s, header=true)", db.QuoteLiteral(path))

	columns, err := p.describe(ctx, source)
	if err != nil {
		return nil, &ValidationError{Message: "Failed to parse CSV: " + err.Error()}
	}

	var names []string
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		names = append(names, c.name)
		present[c.name] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("Missing required columns: %s", formatList(missing))}
	}

	for _, col := range NumericColumns {
		var count int64
		q := fmt.Sprintf("SELECT count(TRY_CAST(%s AS DOUBLE)) FROM %s", db.QuoteIdent(col), source)
		if err := p.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to check column %s: %w", col, err)
		}
		if count == 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("Column %s must contain numeric values.", col)}
		}
	}

	summary, err := p.summarize(ctx, source, columns)
	if err != nil {
		return nil, err
	}

	return &Report{Name: name, Size: info.Size(), Columns: names, Summary: summary}, nil
}

type column struct {
	name    string
	numeric bool
}

func (p *Previewer) describe(ctx context.Context, source string) ([]column, error) {
	rows, err := p.db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var columns []column
	for rows.Next() {
		values := make([]sql.NullString, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// column_name, column_type, then nullability and key info
		columns = append(columns, column{
			name:    values[0].String,
			numeric: isNumericType(values[1].String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New("no columns")
	}
	return columns, nil
}

func (p *Previewer) summarize(ctx context.Context, source string, columns []column) (*models.Summary, error) {
	summary := &models.Summary{
		TypeDistribution: map[string]int{},
		Averages:         map[string]float64{},
	}

	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM "+source).Scan(&summary.Total); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	for _, c := range columns {
		if !c.numeric {
			continue
		}
		var avg sql.NullFloat64
		q := fmt.Sprintf("SELECT avg(%s)::DOUBLE FROM %s", db.QuoteIdent(c.name), source)
		if err := p.db.QueryRowContext(ctx, q).Scan(&avg); err != nil {
			return nil, fmt.Errorf("failed to average %s: %w", c.name, err)
		}
		if avg.Valid {
			summary.Averages[c.name] = avg.Float64
		}
	}

	q := fmt.Sprintf(`SELECT CAST("Type" AS VARCHAR), count(*) FROM %s WHERE "Type" IS NOT NULL GROUP BY 1`, source)
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to count types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		summary.TypeDistribution[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

func isNumericType(t string) bool {
	t = strings.ToUpper(t)
	for _, prefix := range []string{"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT", "UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "FLOAT", "DOUBLE", "DECIMAL", "REAL"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// formatList renders names the way the backend prints a Python list
func formatList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
