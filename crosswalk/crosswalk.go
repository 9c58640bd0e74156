// Package crosswalk converts stored records into the registry's XML dialect.
//
// A crosswalk is a text/template. Each record is parsed as an XML document
// and handed to the template as a *Record, so a crosswalk can pull values
// out with path queries:
//
//	<registryObject key="{{ .Text "//identifier" | xmlescape }}">
//	  {{ range .FindAll "//title" }}<name>{{ .Text | xmlescape }}</name>{{ end }}
//	</registryObject>
//
// Without a crosswalk records pass through as UTF-8 text.
package crosswalk

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

// Error reports a crosswalk that failed to compile or to apply to a record.
type Error struct {
	Name string // template name
	Key  string // object key, empty for compile errors
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("crosswalk %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("crosswalk %s: record %s: %v", e.Name, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var funcs = template.FuncMap{
	"xmlescape": func(s string) (string, error) {
		var b strings.Builder
		if err := xml.EscapeText(&b, []byte(s)); err != nil {
			return "", err
		}
		return b.String(), nil
	},
	"trim":  strings.TrimSpace,
	"join":  func(sep string, elems []string) string { return strings.Join(elems, sep) },
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

// Transformer applies one compiled crosswalk. A nil *Transformer passes
// records through unchanged.
type Transformer struct {
	tpl *template.Template
}

// Compile parses src as a crosswalk named name.
func Compile(name, src string) (*Transformer, error) {
	tpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(src)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	return &Transformer{tpl: tpl}, nil
}

// Load reads and compiles the crosswalk file at path.
func Load(path string) (*Transformer, error) {
	name := filepath.Base(path)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	return Compile(name, string(src))
}

// Enabled reports whether a crosswalk is configured.
func (t *Transformer) Enabled() bool {
	return t != nil && t.tpl != nil
}

// Transform turns raw into the payload uploaded for key.
func (t *Transformer) Transform(key string, raw []byte) (string, error) {
	if !t.Enabled() {
		return decodeUTF8(raw)
	}

	rec, err := parseRecord(key, raw)
	if err != nil {
		return "", &Error{Name: t.tpl.Name(), Key: key, Err: err}
	}

	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, rec); err != nil {
		return "", &Error{Name: t.tpl.Name(), Key: key, Err: err}
	}

	return buf.String(), nil
}

// decodeUTF8 replaces invalid byte sequences with U+FFFD and leaves valid
// input untouched.
func decodeUTF8(raw []byte) (string, error) {
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Record is the data a crosswalk template executes against.
type Record struct {
	Key string
	Raw string

	doc *etree.Document
}

func parseRecord(key string, raw []byte) (*Record, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parse xml: no root element")
	}

	text, err := decodeUTF8(raw)
	if err != nil {
		return nil, err
	}

	return &Record{Key: key, Raw: text, doc: doc}, nil
}

// Root returns the document element.
func (r *Record) Root() *etree.Element {
	return r.doc.Root()
}

// Find returns the first element matching path, or nil.
func (r *Record) Find(path string) (*etree.Element, error) {
	p, err := etree.CompilePath(path)
	if err != nil {
		return nil, err
	}
	return r.doc.FindElementPath(p), nil
}

// FindAll returns every element matching path in document order.
func (r *Record) FindAll(path string) ([]*etree.Element, error) {
	p, err := etree.CompilePath(path)
	if err != nil {
		return nil, err
	}
	return r.doc.FindElementsPath(p), nil
}

// Text returns the trimmed text of the first element matching path, or ""
// when nothing matches.
func (r *Record) Text(path string) (string, error) {
	e, err := r.Find(path)
	if err != nil || e == nil {
		return "", err
	}
	return strings.TrimSpace(e.Text()), nil
}

// Texts returns the trimmed text of every element matching path.
func (r *Record) Texts(path string) ([]string, error) {
	elems, err := r.FindAll(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		out = append(out, strings.TrimSpace(e.Text()))
	}
	return out, nil
}

// Attr returns attribute name of the first element matching path.
func (r *Record) Attr(path, name string) (string, error) {
	e, err := r.Find(path)
	if err != nil || e == nil {
		return "", err
	}
	return e.SelectAttrValue(name, ""), nil
}
