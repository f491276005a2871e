package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/0x-b4r47h/project-guardian/internal/logger"
	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

func newTestPipeline(t *testing.T, cfg *Config) *Pipeline {
	t.Helper()
	analyzer, err := pii.NewAnalyzer([]string{"all"}, logger.Nop())
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	return NewPipeline(analyzer, nil, nil, cfg, logger.Nop().Logger)
}

func TestPipelineProcessFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	output := filepath.Join(dir, "out.csv")

	data := "record_id,data_json\n" +
		`r1,"{""phone"":""9876543210""}"` + "\n" +
		`r2,"{""product"":""laptop""}"` + "\n" +
		"r3,broken payload\n" +
		`r4,"{""name"":""Rahul Sharma"",""email"":""rahul@x.com""}"` + "\n"
	if err := os.WriteFile(input, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, &Config{BatchSize: 2, Workers: 2, ProgressReport: 0})
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	if result.TotalRecords != 4 {
		t.Errorf("TotalRecords = %d, want 4", result.TotalRecords)
	}
	if result.ProcessedOK != 3 {
		t.Errorf("ProcessedOK = %d, want 3", result.ProcessedOK)
	}
	if result.ParseFailed != 1 {
		t.Errorf("ParseFailed = %d, want 1", result.ParseFailed)
	}
	if result.FlaggedPII != 2 {
		t.Errorf("FlaggedPII = %d, want 2", result.FlaggedPII)
	}

	file, err := os.Open(output)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("output has %d rows, want header + 4", len(rows))
	}
	header := rows[0]
	if header[0] != "record_id" || header[1] != "redacted_data_json" || header[2] != "is_pii" {
		t.Errorf("output header = %v", header)
	}

	// Rows come out in input order.
	byID := map[string][]string{}
	for _, row := range rows[1:] {
		byID[row[0]] = row
	}
	if rows[1][0] != "r1" || rows[4][0] != "r4" {
		t.Errorf("output order = %v", rows[1:])
	}

	if byID["r1"][2] != "true" {
		t.Errorf("r1 is_pii = %q, want true", byID["r1"][2])
	}
	var r1 pii.Record
	if err := json.Unmarshal([]byte(byID["r1"][1]), &r1); err != nil {
		t.Fatalf("r1 payload not valid JSON: %v", err)
	}
	if v, _ := r1.Get("phone"); v.Str != "98XXXXXX10" {
		t.Errorf("r1 phone = %q, want masked", v.Str)
	}

	if byID["r2"][2] != "false" {
		t.Errorf("r2 is_pii = %q, want false", byID["r2"][2])
	}

	// Parse failures pass the raw payload through, never flagged.
	if byID["r3"][1] != "broken payload" || byID["r3"][2] != "false" {
		t.Errorf("r3 row = %v", byID["r3"])
	}

	var r4 pii.Record
	if err := json.Unmarshal([]byte(byID["r4"][1]), &r4); err != nil {
		t.Fatalf("r4 payload not valid JSON: %v", err)
	}
	if v, _ := r4.Get("name"); v.Str != "RXXX SXXX" {
		t.Errorf("r4 name = %q, want masked", v.Str)
	}
}

func TestPipelineDryRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	output := filepath.Join(dir, "out.csv")

	data := "record_id,data_json\n" + `1,"{""phone"":""9876543210""}"` + "\n"
	if err := os.WriteFile(input, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, &Config{BatchSize: 10, Workers: 1, DryRun: true})
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if result.TotalRecords != 1 || result.FlaggedPII != 1 {
		t.Errorf("result = %+v", result)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("dry run must not create the output file")
	}
}

func TestPipelineCancellation(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")

	data := "record_id,data_json\n" + `1,"{""a"":""b""}"` + "\n"
	if err := os.WriteFile(input, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, &Config{BatchSize: 10, Workers: 1, DryRun: true})
	if _, err := p.ProcessFile(ctx, input, filepath.Join(dir, "out.csv")); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
