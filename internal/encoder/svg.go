package encoder

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMime = "image/svg+xml"

var (
	svgComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	svgMetadata   = regexp.MustCompile(`(?s)<metadata\b.*?</metadata>|<metadata\b[^>]*/>`)
	svgEditorElem = regexp.MustCompile(`(?s)<(sodipodi|inkscape):[a-zA-Z-]+\b[^>]*/>|<(sodipodi|inkscape):([a-zA-Z-]+)\b[^>]*>.*?</(sodipodi|inkscape):[a-zA-Z-]+>`)
	svgEditorAttr = regexp.MustCompile(`\s(xmlns:)?(sodipodi|inkscape)(:[a-zA-Z-]+)?="[^"]*"`)
	svgStyleTag   = regexp.MustCompile(`<(style|script)\b`)
	svgIDAttr     = regexp.MustCompile(`\sid=("[^"]*"|'[^']*')`)
	svgURLRef     = regexp.MustCompile(`url\(\s*["']?#([^"')\s]+)["']?\s*\)`)
	svgHrefRef    = regexp.MustCompile(`((?:xlink:)?href)=("#[^"]*"|'#[^']*')`)
)

// IDMinifier hands out short, unique element IDs: a, b, … Z, aa, ab, …
// Each optimization creates its own so numbering never leaks across files.
type IDMinifier struct {
	n int
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Next returns the next unused ID.
func (m *IDMinifier) Next() string {
	n := m.n
	m.n++

	var buf []byte
	for {
		buf = append([]byte{idAlphabet[n%len(idAlphabet)]}, buf...)
		n = n/len(idAlphabet) - 1
		if n < 0 {
			break
		}
	}
	return string(buf)
}

// SVGOptimizer strips dead weight from SVG documents: comments, metadata,
// editor namespaces and unreferenced IDs, shortens referenced IDs, then
// runs the tdewolff SVG minifier over the result.
type SVGOptimizer struct {
	m *minify.M
}

// NewSVGOptimizer builds an optimizer with its own minifier instance.
func NewSVGOptimizer() *SVGOptimizer {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc(svgMime, svg.Minify)
	return &SVGOptimizer{m: m}
}

// Optimize returns the optimized document. The input slice is not modified.
func (o *SVGOptimizer) Optimize(data []byte) ([]byte, error) {
	if !bytes.Contains(data, []byte("<svg")) {
		return nil, fmt.Errorf("svg: no <svg> element")
	}

	out := svgComment.ReplaceAll(data, nil)
	out = svgMetadata.ReplaceAll(out, nil)
	out = svgEditorElem.ReplaceAll(out, nil)
	out = svgEditorAttr.ReplaceAll(out, nil)

	// Stylesheets and scripts may select by ID; renaming would break them.
	if !svgStyleTag.Match(out) {
		out = minifyIDs(out, &IDMinifier{})
	}

	var buf bytes.Buffer
	if err := o.m.Minify(svgMime, &buf, bytes.NewReader(out)); err != nil {
		return nil, fmt.Errorf("svg: minify: %w", err)
	}
	return buf.Bytes(), nil
}

// minifyIDs drops IDs nothing references and renames the rest through ids.
func minifyIDs(doc []byte, ids *IDMinifier) []byte {
	referenced := map[string]bool{}
	for _, m := range svgURLRef.FindAllSubmatch(doc, -1) {
		referenced[string(m[1])] = true
	}
	for _, m := range svgHrefRef.FindAllSubmatch(doc, -1) {
		referenced[unquote(m[2])[1:]] = true
	}

	rename := map[string]string{}
	doc = svgIDAttr.ReplaceAllFunc(doc, func(attr []byte) []byte {
		sub := svgIDAttr.FindSubmatch(attr)
		id := unquote(sub[1])
		if !referenced[id] {
			return nil
		}
		short, ok := rename[id]
		if !ok {
			short = ids.Next()
			rename[id] = short
		}
		return []byte(` id="` + short + `"`)
	})

	doc = svgURLRef.ReplaceAllFunc(doc, func(ref []byte) []byte {
		id := string(svgURLRef.FindSubmatch(ref)[1])
		if short, ok := rename[id]; ok {
			return []byte("url(#" + short + ")")
		}
		return ref
	})
	doc = svgHrefRef.ReplaceAllFunc(doc, func(ref []byte) []byte {
		sub := svgHrefRef.FindSubmatch(ref)
		id := unquote(sub[2])[1:]
		if short, ok := rename[id]; ok {
			return []byte(string(sub[1]) + `="#` + short + `"`)
		}
		return ref
	})
	return doc
}

func unquote(b []byte) string {
	if len(b) >= 2 {
		return string(b[1 : len(b)-1])
	}
	return string(b)
}
