// Package source reads patient records from a line-delimited JSON
// file. Blank lines are skipped; a line that fails to decode is
// logged and skipped so one bad export row does not sink the run.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/meddies/emr-importer/internal/model"
	"github.com/meddies/emr-importer/pkg/logger"
)

// Records can carry dozens of encounters; the default scanner buffer
// is too small for those lines.
const maxLineBytes = 4 * 1024 * 1024

type Reader struct {
	path string
	log  *logger.Logger
}

func NewReader(path string, log *logger.Logger) *Reader {
	return &Reader{path: path, log: log}
}

// ReadAll decodes every record in the file, in file order.
func (r *Reader) ReadAll() ([]*model.PatientRecord, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	var records []*model.PatientRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record model.PatientRecord
		if err := json.Unmarshal(line, &record); err != nil {
			r.log.Warn("skipping malformed record line", "line", lineNum, "error", err.Error())
			continue
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	r.log.Info("loaded patient records", "file", r.path, "count", len(records))
	return records, nil
}
