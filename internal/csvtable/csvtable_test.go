package csvtable

import (
	"testing"
)

func TestParseFullRows(t *testing.T) {
	table := Parse("a,b\n1,2\n3,4")

	if len(table.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0]["a"] != "1" || table.Rows[0]["b"] != "2" {
		t.Errorf("Unexpected first row: %v", table.Rows[0])
	}
	if table.Rows[1]["a"] != "3" || table.Rows[1]["b"] != "4" {
		t.Errorf("Unexpected second row: %v", table.Rows[1])
	}
	if len(table.Headers) != 2 || table.Headers[0] != "a" || table.Headers[1] != "b" {
		t.Errorf("Headers should keep CSV order, got %v", table.Headers)
	}
}

func TestParseShortRowLeavesKeyMissing(t *testing.T) {
	table := Parse("a,b\n1")

	if len(table.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(table.Rows))
	}
	row := table.Rows[0]
	if row["a"] != "1" {
		t.Errorf("Expected a=1, got %q", row["a"])
	}
	if _, ok := row["b"]; ok {
		t.Error("Short row should not contain key b")
	}
}

func TestParseEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantRows int
		check    func(t *testing.T, rows []map[string]string)
	}{
		{
			name:     "empty input",
			text:     "",
			wantRows: 0,
		},
		{
			name:     "header only",
			text:     "a,b\n",
			wantRows: 0,
		},
		{
			name:     "crlf line endings",
			text:     "a,b\r\n1,2\r\n",
			wantRows: 1,
			check: func(t *testing.T, rows []map[string]string) {
				if rows[0]["b"] != "2" {
					t.Errorf("Carriage return should be stripped, got %q", rows[0]["b"])
				}
			},
		},
		{
			name:     "extra cells are dropped",
			text:     "a\n1,2,3",
			wantRows: 1,
			check: func(t *testing.T, rows []map[string]string) {
				if len(rows[0]) != 1 {
					t.Errorf("Expected a single key, got %v", rows[0])
				}
			},
		},
		{
			name:     "headers are trimmed, cells are not",
			text:     " Type , Flowrate\nPump, 10",
			wantRows: 1,
			check: func(t *testing.T, rows []map[string]string) {
				if rows[0]["Flowrate"] != " 10" {
					t.Errorf("Cell should be kept verbatim, got %q", rows[0]["Flowrate"])
				}
			},
		},
		{
			name:     "quotes are not interpreted",
			text:     "name,note\n\"a,b\",c",
			wantRows: 1,
			check: func(t *testing.T, rows []map[string]string) {
				if rows[0]["name"] != "\"a" {
					t.Errorf("Plain split expected, got %q", rows[0]["name"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Parse(tt.text)
			if len(table.Rows) != tt.wantRows {
				t.Fatalf("Expected %d rows, got %d", tt.wantRows, len(table.Rows))
			}
			if tt.check != nil {
				rows := make([]map[string]string, len(table.Rows))
				for i, r := range table.Rows {
					rows[i] = r
				}
				tt.check(t, rows)
			}
		})
	}
}

func BenchmarkParse(b *testing.B) {
	text := "Equipment Name,Type,Flowrate,Pressure,Temperature\n"
	for i := 0; i < 500; i++ {
		text += "Pump A,Pump,100.5,2.3,75.0\n"
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Parse(text)
	}
}
