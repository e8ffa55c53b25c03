package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"iter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/fetcher"
	"github.com/sells-group/catalog-importer/internal/model"
)

const (
	productsElement = "products"
	productElement  = "product"
)

// Document is a parsed feed held in memory for extraction.
type Document struct {
	Root *Node
}

// Parse builds the element tree of a feed document.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, model.NewError(model.KindMalformedFeed, "feed.parse", eris.New("empty document"))
	}

	dec := fetcher.NewXMLDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, model.NewError(model.KindMalformedFeed, "feed.parse", eris.New("no root element"))
		}
		if err != nil {
			return nil, model.NewError(model.KindMalformedFeed, "feed.parse", eris.Wrap(err, "read token"))
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		root := &Node{}
		if err := root.UnmarshalXML(dec, start); err != nil {
			return nil, model.NewError(model.KindMalformedFeed, "feed.parse", eris.Wrap(err, "decode root"))
		}
		return &Document{Root: root}, nil
	}
}

// ExtractProducts returns the records under root → products → product.
func ExtractProducts(doc *Document) ([]Record, error) {
	if doc == nil || doc.Root == nil {
		return nil, model.NewError(model.KindUnexpectedShape, "feed.extract", eris.New("empty document"))
	}
	products := doc.Root.Child(productsElement)
	if products == nil {
		return nil, model.NewError(model.KindUnexpectedShape, "feed.extract",
			eris.Errorf("no <%s> under <%s>", productsElement, doc.Root.Name.Local))
	}
	nodes := products.ChildrenNamed(productElement)
	records := make([]Record, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, NewRecord(n))
	}
	return records, nil
}

// Stream lazily yields product records read from r without holding the
// whole document. Iteration stops at the first error, which is yielded
// with a zero Record.
func Stream(ctx context.Context, r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		nodes, errs := fetcher.StreamXML[Node](ctx, r, productElement,
			fetcher.WithParent(productsElement), fetcher.AtDepth(2))
		for n := range nodes {
			if !yield(NewRecord(&n), nil) {
				return
			}
		}
		for err := range errs {
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, fetcher.ErrParentNotFound):
				err = model.NewError(model.KindUnexpectedShape, "feed.stream", err)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			default:
				err = model.NewError(model.KindMalformedFeed, "feed.stream", err)
			}
			yield(Record{}, err)
			return
		}
	}
}
