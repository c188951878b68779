package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestPrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut), &out, &errOut
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuccess_WithFormatting(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Success("Sent %d envelopes to %s", 5, "beacon.envelopes.event")

	assert.Contains(t, out.String(), "✓")
	assert.Contains(t, out.String(), "Sent 5 envelopes to beacon.envelopes.event")
}

func TestError_GoesToErr(t *testing.T) {
	p, out, errOut := newTestPrinter()
	p.Error("Failed to connect to %s on port %d", "nats", 4222)

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "✗")
	assert.Contains(t, errOut.String(), "Failed to connect to nats on port 4222")
}

func TestInfo(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Info("Processing %d of %d events", 5, 10)

	assert.Contains(t, out.String(), "Processing 5 of 10 events")
	assert.NotContains(t, out.String(), "✓")
	assert.NotContains(t, out.String(), "✗")
}

func TestWarn(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.Warn("Queue is %d%% full", 95)

	assert.Contains(t, out.String(), "⚠")
	assert.Contains(t, out.String(), "Queue is 95% full")
}

func TestJSON_Indented(t *testing.T) {
	p, out, _ := newTestPrinter()
	data := map[string]any{
		"item": map[string]any{
			"type":   "event",
			"length": 123,
		},
	}
	require.NoError(t, p.JSON(data))

	assert.Contains(t, out.String(), "  \"item\":")
	assert.Contains(t, out.String(), "    \"length\":")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
}

func TestYAML(t *testing.T) {
	p, out, _ := newTestPrinter()
	type row struct {
		Type   string `yaml:"type"`
		Length int    `yaml:"length"`
	}
	require.NoError(t, p.YAML([]row{{"event", 10}, {"client_report", 4}}))

	var parsed []row
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &parsed))
	assert.Equal(t, []row{{"event", 10}, {"client_report", 4}}, parsed)
}

func TestStructured(t *testing.T) {
	p, out, _ := newTestPrinter()
	require.NoError(t, p.Structured(FormatYAML, map[string]int{"count": 2}))
	assert.Equal(t, "count: 2\n", out.String())

	out.Reset()
	require.NoError(t, p.Structured(FormatJSON, map[string]int{"count": 2}))
	assert.JSONEq(t, `{"count":2}`, out.String())
}

func TestTable_AddRow(t *testing.T) {
	table := NewTable([]string{"Col1", "Col2"})

	table.AddRow([]string{"val1", "val2"})
	table.AddRow([]string{"val3", "val4"})

	assert.Len(t, table.rows, 2)
	assert.Equal(t, []string{"val3", "val4"}, table.rows[1])
}

func TestTable_Render_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTable([]string{"Type", "Length"}).Render(&buf)

	assert.Contains(t, buf.String(), "Type")
	assert.Contains(t, buf.String(), "Length")
	assert.Contains(t, buf.String(), "----")
}

func TestTable_Render_ColumnAlignment(t *testing.T) {
	table := NewTable([]string{"Short", "VeryLongHeader"})
	table.AddRow([]string{"A", "B"})
	table.AddRow([]string{"LongValue", "C"})

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	// Second column starts at the same offset on every data row.
	assert.Equal(t, strings.Index(lines[2], "B"), strings.Index(lines[3], "C"))
	assert.Equal(t, strings.Repeat("-", len("LongValue")), strings.Fields(lines[1])[0])
}

func TestTable_Render_ShortAndLongRows(t *testing.T) {
	table := NewTable([]string{"A", "B"})
	table.AddRow([]string{"1"})
	table.AddRow([]string{"x", "y", "dropped"})

	var buf bytes.Buffer
	table.Render(&buf)

	assert.Contains(t, buf.String(), "1")
	assert.Contains(t, buf.String(), "y")
	assert.NotContains(t, buf.String(), "dropped")
}
