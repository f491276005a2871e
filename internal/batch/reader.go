package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// utf8BOM is stripped from UTF-8 input before parsing.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// rowReader yields input rows one at a time.
type rowReader interface {
	Next() (InputRow, error) // io.EOF at end of input
}

// csvReader reads a delimited-text container whose payload column holds a
// JSON object per row.
type csvReader struct {
	reader     *csv.Reader
	header     []string
	payloadCol int
	recordCol  int
	rowNum     int
	logger     *zap.Logger
}

// newCSVReader negotiates the text encoding, sniffs the delimiter, and
// locates the payload and record-id columns.
func newCSVReader(path string, logger *zap.Logger) (*csvReader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	text, encodingName, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("could not decode file with any supported encoding: %w", err)
	}
	logger.Info("Reading CSV input",
		zap.String("file", path),
		zap.String("encoding", encodingName))

	delimiter := sniffDelimiter(text)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	logger.Info("CSV header detected",
		zap.Strings("columns", header),
		zap.String("delimiter", string(delimiter)))

	payloadCol := -1
	recordCol := -1
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if payloadCol == -1 && strings.Contains(name, "json") {
			payloadCol = i
		}
		if recordCol == -1 && name == "record_id" {
			recordCol = i
		}
	}
	if payloadCol == -1 {
		return nil, fmt.Errorf("no JSON payload column found, columns: %v", header)
	}

	return &csvReader{
		reader:     r,
		header:     header,
		payloadCol: payloadCol,
		recordCol:  recordCol,
		logger:     logger,
	}, nil
}

// Next returns the next input row. Rows whose payload fails to parse are
// returned with ParseFailed set rather than dropped.
func (c *csvReader) Next() (InputRow, error) {
	for {
		fields, err := c.reader.Read()
		if err == io.EOF {
			return InputRow{}, io.EOF
		}
		if err != nil {
			c.logger.Warn("Failed to read CSV record", zap.Error(err))
			continue
		}
		c.rowNum++

		if c.payloadCol >= len(fields) {
			c.logger.Warn("Row has no payload column", zap.Int("row", c.rowNum))
			continue
		}

		recordID := strconv.Itoa(c.rowNum)
		if c.recordCol >= 0 && c.recordCol < len(fields) && fields[c.recordCol] != "" {
			recordID = fields[c.recordCol]
		}

		return parsePayloadRow(recordID, fields[c.payloadCol]), nil
	}
}

// jsonReader reads newline-delimited JSON rows of the shape
// {"record_id": "...", "data": {...}}; a "data_json" string field is
// accepted as an alternative to an inline object.
type jsonReader struct {
	scanner *bufio.Scanner
	rowNum  int
	logger  *zap.Logger
}

type jsonRow struct {
	RecordID string          `json:"record_id"`
	Data     json.RawMessage `json:"data"`
	DataJSON string          `json:"data_json"`
}

func newJSONReader(path string, logger *zap.Logger) (*jsonReader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &jsonReader{scanner: scanner, logger: logger}, nil
}

func (j *jsonReader) Next() (InputRow, error) {
	for j.scanner.Scan() {
		line := strings.TrimSpace(j.scanner.Text())
		if line == "" {
			continue
		}
		j.rowNum++

		var row jsonRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			j.logger.Warn("Failed to parse JSON row", zap.Int("row", j.rowNum), zap.Error(err))
			return InputRow{RecordID: strconv.Itoa(j.rowNum), RawPayload: line, ParseFailed: true}, nil
		}

		recordID := row.RecordID
		if recordID == "" {
			recordID = strconv.Itoa(j.rowNum)
		}

		payload := row.DataJSON
		if len(row.Data) > 0 {
			payload = string(row.Data)
		}

		return parsePayloadRow(recordID, payload), nil
	}
	if err := j.scanner.Err(); err != nil {
		return InputRow{}, err
	}
	return InputRow{}, io.EOF
}

// parquetRow mirrors the columnar input schema.
type parquetRow struct {
	RecordID string `parquet:"record_id"`
	DataJSON string `parquet:"data_json"`
}

// parquetReader reads record_id/data_json pairs from a Parquet file.
type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
	rowNum int
	logger *zap.Logger
}

func newParquetReader(path string, logger *zap.Logger) (*parquetReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	return &parquetReader{
		file:   file,
		reader: parquet.NewReader(file),
		logger: logger,
	}, nil
}

func (p *parquetReader) Next() (InputRow, error) {
	for {
		var row parquetRow
		err := p.reader.Read(&row)
		if err == io.EOF {
			return InputRow{}, io.EOF
		}
		if err != nil {
			p.logger.Warn("Failed to read Parquet record", zap.Error(err))
			continue
		}
		p.rowNum++

		recordID := row.RecordID
		if recordID == "" {
			recordID = strconv.Itoa(p.rowNum)
		}
		return parsePayloadRow(recordID, row.DataJSON), nil
	}
}

// Close releases the underlying file.
func (p *parquetReader) Close() error {
	p.reader.Close()
	return p.file.Close()
}

// parsePayloadRow parses one payload column value into a record. Parse
// failures mark the row pass-through instead of erroring the batch.
func parsePayloadRow(recordID, payload string) InputRow {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return InputRow{RecordID: recordID, RawPayload: payload, ParseFailed: true}
	}

	var rec pii.Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return InputRow{RecordID: recordID, RawPayload: payload, ParseFailed: true}
	}
	return InputRow{RecordID: recordID, Payload: rec, RawPayload: payload}
}

// decodeText negotiates the input text encoding: UTF-8 (with or without
// BOM) first, then Windows-1252, then Latin-1.
func decodeText(raw []byte) (string, string, error) {
	if bytes.HasPrefix(raw, utf8BOM) {
		return string(bytes.TrimPrefix(raw, utf8BOM)), "utf-8-sig", nil
	}
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}

	for _, attempt := range []struct {
		name    string
		decoder *encoding.Decoder
	}{
		{"windows-1252", charmap.Windows1252.NewDecoder()},
		{"latin-1", charmap.ISO8859_1.NewDecoder()},
	} {
		decoded, err := attempt.decoder.Bytes(raw)
		if err != nil {
			continue
		}
		return string(decoded), attempt.name, nil
	}

	return "", "", fmt.Errorf("input is not valid utf-8, windows-1252, or latin-1")
}

// sniffDelimiter picks the field delimiter from the header line:
// semicolon when the header carries semicolons but no commas.
func sniffDelimiter(text string) rune {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	if !strings.Contains(firstLine, ",") && strings.Contains(firstLine, ";") {
		return ';'
	}
	return ','
}
