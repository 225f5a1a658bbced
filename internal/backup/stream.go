package backup

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"iter"
)

// ErrFileNotFound indicates a file was not found in the backup archive.
var ErrFileNotFound = errors.New("file not found in backup")

// openFile finds and opens a file from a zip archive.
func openFile(zr *zip.Reader, path string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == path {
			return f.Open()
		}
	}
	return nil, ErrFileNotFound
}

// jsonlWriter streams records as JSONL to one member of a zip archive.
type jsonlWriter struct {
	enc   *json.Encoder
	count int
}

func newJSONLWriter(zw *zip.Writer, path string) (*jsonlWriter, error) {
	w, err := zw.Create(path)
	if err != nil {
		return nil, err
	}
	return &jsonlWriter{enc: json.NewEncoder(w)}, nil
}

// Write encodes a single record as a JSON line.
func (w *jsonlWriter) Write(record any) error {
	if err := w.enc.Encode(record); err != nil {
		return err
	}
	w.count++
	return nil
}

// readJSONL returns an iterator over the records of a JSONL stream. A line
// that fails to decode is yielded as an error and reading continues. rc is
// closed when iteration ends.
func readJSONL[T any](rc io.ReadCloser) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var record T
			if err := json.Unmarshal(line, &record); err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(&record, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}
