package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune   // default ','
	Charset   string // source encoding; empty means UTF-8
	Comment   rune   // comment character (0 = none)
	TrimSpace bool
}

// StreamCSV reads a CSV file and sends each record to the row channel. The
// first record is treated as the header and sent on the header channel, which
// is closed after the single send. Rows keep the header's field order;
// variable-width records are allowed so sparse exports still parse.
// All channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan []string, <-chan error) {
	headerCh := make(chan []string, 1)
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(headerCh)
		defer close(rowCh)
		defer close(errCh)

		decoded, err := DecodeReader(r, opts.Charset)
		if err != nil {
			errCh <- err
			return
		}

		reader := csv.NewReader(decoded)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first {
				first = false
				headerCh <- record
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return headerCh, rowCh, errCh
}
