// Package importer loads agency export files into the store. Rows map onto
// domain records leniently: headers are matched case-insensitively and
// malformed cells decode to zero values rather than failing the file.
package importer

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/fetcher"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Kind selects which record type an import file holds.
type Kind string

const (
	KindProperties Kind = "properties"
	KindActivities Kind = "activities"
)

// Options configures a file import.
type Options struct {
	Kind      Kind
	Charset   string // CSV source encoding; empty means UTF-8
	Sheet     string // XLSX sheet name; empty means first sheet
	BatchSize int    // rows per insert batch
}

// Result summarizes a completed import.
type Result struct {
	Rows     int64
	Inserted int64
	Skipped  int64
}

// Importer maps parsed rows onto records and bulk-inserts them.
type Importer struct {
	store store.Store
}

func New(s store.Store) *Importer {
	return &Importer{store: s}
}

// ImportCSV streams a CSV file into the store. Parsing and inserting overlap:
// the fetcher goroutine reads ahead while completed batches are written.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	if opts.BatchSize <= 0 {
		return Result{}, eris.New("importer: batch size must be > 0")
	}

	headerCh, rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Charset:   opts.Charset,
		TrimSpace: true,
	})

	var header []string
	for h := range headerCh {
		header = normalizeHeader(h)
	}

	var res Result
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan []model.Raw, 2)

	g.Go(func() error {
		defer close(batches)
		batch := make([]model.Raw, 0, opts.BatchSize)
		for row := range rowCh {
			res.Rows++
			raw := zipRow(header, row)
			if raw == nil {
				res.Skipped++
				continue
			}
			batch = append(batch, raw)
			if len(batch) >= opts.BatchSize {
				select {
				case batches <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
				batch = make([]model.Raw, 0, opts.BatchSize)
			}
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return <-errCh
	})

	g.Go(func() error {
		for batch := range batches {
			n, err := im.insert(ctx, opts.Kind, batch)
			if err != nil {
				return err
			}
			res.Inserted += n
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// ImportXLSX loads one sheet of an XLSX file into the store.
func (im *Importer) ImportXLSX(ctx context.Context, path string, opts Options) (Result, error) {
	if opts.BatchSize <= 0 {
		return Result{}, eris.New("importer: batch size must be > 0")
	}

	rawHeader, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet})
	if err != nil {
		return Result{}, err
	}
	if len(rawHeader) == 0 {
		return Result{}, eris.Errorf("importer: %s has no header row", path)
	}
	header := normalizeHeader(rawHeader)

	var res Result
	batch := make([]model.Raw, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.insert(ctx, opts.Kind, batch)
		if err != nil {
			return err
		}
		res.Inserted += n
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		res.Rows++
		raw := zipRow(header, row)
		if raw == nil {
			res.Skipped++
			continue
		}
		batch = append(batch, raw)
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (im *Importer) insert(ctx context.Context, kind Kind, batch []model.Raw) (int64, error) {
	switch kind {
	case KindProperties:
		properties := make([]model.Property, 0, len(batch))
		for _, raw := range batch {
			properties = append(properties, model.DecodeProperty(raw))
		}
		return im.store.SaveProperties(ctx, properties)
	case KindActivities:
		var n int64
		for _, raw := range batch {
			a := model.DecodeActivity(raw)
			if a.AgentRef == "" {
				zap.L().Warn("importer: activity row missing agent_ref, skipped")
				continue
			}
			if err := im.store.SaveActivity(ctx, a); err != nil {
				return n, err
			}
			n++
		}
		return n, nil
	default:
		return 0, eris.Errorf("importer: unknown kind %q", kind)
	}
}

// normalizeHeader lowercases and snake_cases column names so "Agency Name",
// "agency name", and "agency_name" all map to the same field.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.ReplaceAll(h, " ", "_")
		out[i] = h
	}
	return out
}

// zipRow pairs header names with row cells. Rows with no non-empty cell map
// to nil and are skipped.
func zipRow(header []string, row []string) model.Raw {
	raw := make(model.Raw, len(header))
	empty := true
	for i, name := range header {
		if name == "" || i >= len(row) {
			continue
		}
		if row[i] != "" {
			empty = false
		}
		raw[name] = row[i]
	}
	if empty {
		return nil
	}
	return raw
}
