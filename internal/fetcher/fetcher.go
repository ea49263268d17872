// Package fetcher parses tabular import files (CSV and XLSX) into string
// rows for the importer to map onto domain records.
package fetcher

import (
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeReader wraps r so its bytes are transcoded from the named charset to
// UTF-8. An empty charset returns r unchanged; agency exports are frequently
// windows-1252 rather than UTF-8.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
