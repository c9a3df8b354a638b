// Package telemetry provides the record sink, run statistics, phase timing and
// summary output.
package telemetry

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/gocarina/gocsv"
)

var (
	// ErrSinkAlreadyExists is returned when the record file is already present.
	ErrSinkAlreadyExists = errors.New("record sink already exists")
	// ErrSinkWriteFailed is returned when appending to the record file fails.
	ErrSinkWriteFailed = errors.New("record sink write failed")
)

// Record is one output line: a point position and its energy density.
type Record struct {
	X float64 `csv:"x"`
	Y float64 `csv:"y"`
	W float64 `csv:"w"`
}

// AppendLine appends the record in the "x, y, W\n" line format.
func (r Record) AppendLine(buf []byte) []byte {
	buf = strconv.AppendFloat(buf, r.X, 'g', -1, 64)
	buf = append(buf, ", "...)
	buf = strconv.AppendFloat(buf, r.Y, 'g', -1, 64)
	buf = append(buf, ", "...)
	buf = strconv.AppendFloat(buf, r.W, 'g', -1, 64)
	return append(buf, '\n')
}

// RecordSink appends records to a writer, one line per record.
// Append is safe for concurrent use; lines never interleave. Every line is
// flushed before Append returns, so a write error surfaces on the record
// that caused it.
type RecordSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	line   []byte
	count  int
	err    error
}

// CreateRecordSink creates a new record file at path.
// The file must not exist yet.
func CreateRecordSink(path string) (*RecordSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrSinkAlreadyExists, path)
		}
		return nil, fmt.Errorf("creating record file: %w", err)
	}
	sink := NewRecordSink(f)
	sink.closer = f
	return sink, nil
}

// NewRecordSink wraps an arbitrary writer. Close flushes but does not close w.
func NewRecordSink(w io.Writer) *RecordSink {
	return &RecordSink{
		w:    bufio.NewWriter(w),
		line: make([]byte, 0, 80),
	}
}

// Append writes one record. After the first failure every call returns the same error.
func (s *RecordSink) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.line = r.AppendLine(s.line[:0])
	if _, err := s.w.Write(s.line); err != nil {
		s.err = fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
		return s.err
	}
	if err := s.w.Flush(); err != nil {
		s.err = fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
		return s.err
	}
	s.count++
	return nil
}

// Count returns the number of records appended so far.
func (s *RecordSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close closes the underlying file if the sink owns it.
func (s *RecordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	firstErr := s.err
	if err := s.w.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
		}
		s.closer = nil
	}
	return firstErr
}

// ReadRecords parses a headerless record file.
func ReadRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 3

	var records []Record
	if err := gocsv.UnmarshalCSVWithoutHeaders(reader, &records); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return records, nil
}

// ReadRecordFile parses the record file at path.
func ReadRecordFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()
	return ReadRecords(f)
}

// SortRecords orders records by x, then y. Ties keep their energy order so
// coincident points still sort deterministically.
func SortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		case a.Y < b.Y:
			return -1
		case a.Y > b.Y:
			return 1
		case a.W < b.W:
			return -1
		case a.W > b.W:
			return 1
		}
		return 0
	})
}

// WriteRecords writes records in the sink line format, in the given order.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	line := make([]byte, 0, 80)
	for _, r := range records {
		line = r.AppendLine(line[:0])
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("writing records: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}
