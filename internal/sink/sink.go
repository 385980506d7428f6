package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrSinkUnavailable = errors.New("result sink unavailable")

// TimestampLayout renders UTC with microseconds and a literal Z, e.g.
// 2025-01-02T03:04:05.123456Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Record is one line of the output file. Field order is the JSON key order.
type Record struct {
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Encode renders records as an indented JSON array. Non-ASCII and HTML
// characters are written verbatim. The output depends only on records.
func Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write replaces path with the encoded records. The data goes to a temp file
// in the same directory first and is renamed into place, so a reader sees
// either the old file or the complete new one.
func Write(path string, records []Record) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("%w: %s: encode: %v", ErrSinkUnavailable, path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, path, err)
	}
	return nil
}
