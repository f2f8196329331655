package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"

	"github.com/inkpress/assetloader/internal/domain"
)

var errNoRootElement = errors.New("document has no root element")

// Request performs a single GET and decodes the body according to kind.
// It never chunks and never publishes progress.
//
// Decoded values by kind:
//   - json: the value produced by encoding/json (map, slice, string, ...)
//   - text: string, invalid UTF-8 replaced with U+FFFD
//   - xml, xhtml: *etree.Document
//   - html, htm: *html.Node (the document node)
//   - binary, arraybuffer, blob and unknown kinds: []byte
func (l *Loader) Request(ctx context.Context, url string, kind domain.ContentKind, withCredentials bool, headers map[string]string) (any, error) {
	if url == "" {
		return nil, domain.ErrEmptyURL
	}

	opts := Options{WithCredentials: withCredentials, Headers: headers}
	resp, err := l.transport.Do(ctx, l.newRequest(http.MethodGet, url, opts, ""))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("request %s: %w", url, ctxErr)
		}
		return nil, domain.NewNetworkError(http.MethodGet, url, err)
	}
	if !resp.OK() {
		return nil, domain.NewStatusError(http.MethodGet, url, resp.StatusCode)
	}

	return Decode(url, kind, resp.Body)
}

// RequestMethod is the combined entry point used by e-book readers: binary
// content goes through the chunked loader, everything else through Request.
func (l *Loader) RequestMethod(ctx context.Context, url string, kind string, withCredentials bool, headers map[string]string) (any, error) {
	k := domain.ParseContentKind(kind)
	if k.IsBinary() {
		return l.Load(ctx, url, Options{WithCredentials: withCredentials, Headers: headers})
	}
	return l.Request(ctx, url, k, withCredentials, headers)
}

// Decode converts a response body into the value for kind
func Decode(url string, kind domain.ContentKind, body []byte) (any, error) {
	switch kind {
	case domain.KindJSON:
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, domain.NewDecodeError(kind, url, err)
		}
		return v, nil

	case domain.KindText:
		return strings.ToValidUTF8(string(body), "\uFFFD"), nil

	case domain.KindXML, domain.KindXHTML:
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(body); err != nil {
			return nil, domain.NewDecodeError(kind, url, err)
		}
		if doc.Root() == nil {
			return nil, domain.NewDecodeError(kind, url, errNoRootElement)
		}
		return doc, nil

	case domain.KindHTML, domain.KindHTM:
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, domain.NewDecodeError(kind, url, err)
		}
		return doc, nil
	}

	return body, nil
}
