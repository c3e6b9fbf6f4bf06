package fetcher

import (
	"context"
	"encoding/xml"
	"io"
	"slices"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// StreamXML decodes every element whose local name is one of names into T
// and sends it on the returned channel. Both channels are closed when the
// document ends; at most one error is sent.
func StreamXML[T any](ctx context.Context, r io.Reader, names ...string) (<-chan T, <-chan error) {
	outCh := make(chan T, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := xml.NewDecoder(r)
		dec.Strict = false
		dec.CharsetReader = charsetReader

		for {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "xml: context cancelled")
				return
			}
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}
			se, ok := tok.(xml.StartElement)
			if !ok || !slices.Contains(names, se.Name.Local) {
				continue
			}

			var item T
			if err := dec.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrapf(err, "xml: decode <%s>", se.Name.Local)
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}
