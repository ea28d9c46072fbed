// Package csvtable turns raw CSV text into table rows with a plain
// delimiter split. Quoted fields are not supported.
package csvtable

import (
	"strings"

	"github.com/chemviz/chemviz/pkg/models"
)

// Parse splits text into lines and cells. The first line is always the
// header row. Cells beyond the header count are dropped; headers without a
// cell are left out of that row.
func Parse(text string) models.Table {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Table{}
	}

	lines := strings.Split(text, "\n")
	headerCells := strings.Split(strings.TrimRight(lines[0], "\r"), ",")
	headers := make([]string, len(headerCells))
	for i, h := range headerCells {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]models.TableRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cols := strings.Split(strings.TrimRight(line, "\r"), ",")
		row := make(models.TableRow, len(headers))
		for idx, h := range headers {
			if idx < len(cols) {
				row[h] = cols[idx]
			}
		}
		rows = append(rows, row)
	}

	return models.Table{Headers: headers, Rows: rows}
}
