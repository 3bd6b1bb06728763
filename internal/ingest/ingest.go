package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Result is the outcome of ingesting one source.
type Result struct {
	Transactions []domain.Transaction
	RowsRead     int
}

// RowsDropped is the number of data rows rejected by the mapper.
func (r *Result) RowsDropped() int {
	return r.RowsRead - len(r.Transactions)
}

// Ingest reads every row from r, normalizes and maps it, and returns the
// accepted transactions in source order.
//
// Returns domain.ErrMalformedInput when the source cannot be parsed and
// domain.ErrNoValidRecords when it parses but no row survives mapping.
func Ingest(r io.Reader, ft domain.FileType, opts ...Option) (*Result, error) {
	reader, err := NewRowReader(ft, opts...)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	err = reader.ReadRows(r, func(row domain.RawRow) error {
		res.RowsRead++
		if tx, ok := BuildTransaction(row); ok {
			res.Transactions = append(res.Transactions, tx)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}

	return finish(res)
}

// IngestFile opens path and ingests it as ft.
func IngestFile(path string, ft domain.FileType, opts ...Option) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	defer f.Close()

	return Ingest(f, ft, opts...)
}

// IngestRows maps rows that arrived already split into key/value pairs,
// such as a JSON request body. Keys are sanitized here.
func IngestRows(rows []domain.RawRow) (*Result, error) {
	res := &Result{RowsRead: len(rows)}
	for _, row := range rows {
		if tx, ok := BuildTransaction(NormalizeRow(row)); ok {
			res.Transactions = append(res.Transactions, tx)
		}
	}
	return finish(res)
}

func finish(res *Result) (*Result, error) {
	if len(res.Transactions) == 0 {
		return nil, fmt.Errorf("%w: %d rows read", domain.ErrNoValidRecords, res.RowsRead)
	}
	return res, nil
}
