package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrParentNotFound is reported at end of input when StreamXML was
// constrained to a parent element that never appeared.
var ErrParentNotFound = eris.New("xml: parent element not found")

// NewXMLDecoder returns a lenient decoder that understands the charsets
// vendors actually declare (iso-8859-2, windows-1250, ...) and HTML entities.
func NewXMLDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

// StreamOption constrains which elements StreamXML decodes.
type StreamOption func(*streamConfig)

type streamConfig struct {
	parent string
	depth  int
}

// WithParent only decodes elements whose direct parent has the given local name.
// If that parent never appears, ErrParentNotFound is sent on the error channel.
func WithParent(name string) StreamOption {
	return func(c *streamConfig) {
		c.parent = name
	}
}

// AtDepth only decodes elements with exactly depth ancestors, the document
// root being the first. Combined with WithParent the parent must sit at
// depth-1.
func AtDepth(depth int) StreamOption {
	return func(c *streamConfig) {
		c.depth = depth
	}
}

// StreamXML decodes XML elements matching the given local name and sends them to a channel.
// The type parameter T must be decodable by encoding/xml (struct tags or UnmarshalXML).
// Both channels are closed when processing completes.
func StreamXML[T any](ctx context.Context, r io.Reader, elementName string, opts ...StreamOption) (<-chan T, <-chan error) {
	var cfg streamConfig
	for _, o := range opts {
		o(&cfg)
	}

	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := NewXMLDecoder(r)
		var stack []string
		parentSeen := cfg.parent == ""

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				if !parentSeen {
					errCh <- ErrParentNotFound
				}
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			switch t := tok.(type) {
			case xml.EndElement:
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				continue
			case xml.StartElement:
				if t.Name.Local == cfg.parent && (cfg.depth == 0 || len(stack) == cfg.depth-1) {
					parentSeen = true
				}
				if t.Name.Local != elementName || !parentMatches(stack, cfg.parent) ||
					(cfg.depth > 0 && len(stack) != cfg.depth) {
					stack = append(stack, t.Name.Local)
					continue
				}

				var item T
				if err := decoder.DecodeElement(&item, &t); err != nil {
					errCh <- eris.Wrap(err, "xml: decode element")
					return
				}

				select {
				case outCh <- item:
				case <-ctx.Done():
					errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
					return
				}
			}
		}
	}()

	return outCh, errCh
}

func parentMatches(stack []string, parent string) bool {
	if parent == "" {
		return true
	}
	return len(stack) > 0 && stack[len(stack)-1] == parent
}
