package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadCorpus reads evidence records from a .json array or a .jsonl file.
// Used to seed the memory backend; ingestion pipelines are out of scope.
func LoadCorpus(ctx context.Context, path string) ([]EvidenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return loadJSONL(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	var records []EvidenceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corpus: parsing %s: %w", path, err)
	}
	return records, validateRecords(path, records)
}

func loadJSONL(path string) ([]EvidenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	defer f.Close()

	var records []EvidenceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec EvidenceRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("corpus: line %d in %s: %w", lineNum, path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: reading %s: %w", path, err)
	}
	return records, validateRecords(path, records)
}

func validateRecords(path string, records []EvidenceRecord) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("corpus: record %d in %s has no id", i, path)
		}
	}
	return nil
}
