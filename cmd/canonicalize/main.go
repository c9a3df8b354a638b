// Command canonicalize rewrites a record file sorted by (x, y) so that runs
// with different worker counts can be compared byte for byte.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pthm-cable/freemesh/telemetry"
)

func main() {
	in := flag.String("in", "raw_data.txt", "Record file to read")
	out := flag.String("out", "", "Canonical file to create (empty = stdout)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	n, err := canonicalize(*in, *out)
	if err != nil {
		slog.Error("canonicalize failed", "error", err)
		os.Exit(1)
	}
	slog.Info("canonicalized", "in", *in, "out", *out, "records", n)
}

// canonicalize sorts the records of in and writes them to out, or stdout if
// out is empty. The output file must not exist yet.
func canonicalize(in, out string) (int, error) {
	records, err := telemetry.ReadRecordFile(in)
	if err != nil {
		return 0, err
	}
	telemetry.SortRecords(records)

	if out == "" {
		return len(records), telemetry.WriteRecords(os.Stdout, records)
	}

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", telemetry.ErrSinkAlreadyExists, out)
		}
		return 0, fmt.Errorf("creating canonical file: %w", err)
	}
	if err := telemetry.WriteRecords(f, records); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing canonical file: %w", err)
	}
	return len(records), nil
}
