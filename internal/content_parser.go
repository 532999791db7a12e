package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// defaultBodyLimit is the default maximum request body size (1 MiB).
const defaultBodyLimit int64 = 1 << 20

// parserEntry binds a content type parser to the instance that registered it.
type parserEntry struct {
	owner *Instance
	parse ContentTypeParser
}

// parserSet maps media types ("*" is the catch-all) to parsers.
type parserSet map[string]*parserEntry

func (s parserSet) lookup(mediaType string) *parserEntry {
	if p, ok := s[mediaType]; ok {
		return p
	}
	return s["*"]
}

// AddContentTypeParser registers a parser for a media type on the instance.
// "*" registers a catch-all parser. A child may override a parser it
// inherited; registering the same type twice on one instance fails.
func (i *Instance) AddContentTypeParser(contentType string, parser ContentTypeParser) error {
	if err := i.checkMutable("add a content type parser"); err != nil {
		return err
	}
	if parser == nil {
		return fmt.Errorf("%w: nil content type parser", ErrInvalidHandler)
	}
	mediaType := normalizeMediaType(contentType)
	if mediaType == "" {
		return fmt.Errorf("%w: empty content type", ErrInvalidHandler)
	}
	if _, ok := i.parsers[mediaType]; ok {
		return fmt.Errorf("%w: %s", ErrContentTypeParserExists, mediaType)
	}
	i.parsers[mediaType] = &parserEntry{owner: i, parse: parser}
	return nil
}

// HasContentTypeParser reports whether a parser for contentType is visible
// from the instance.
func (i *Instance) HasContentTypeParser(contentType string) bool {
	_, ok := i.contentParsers()[normalizeMediaType(contentType)]
	return ok
}

// contentParsers merges application defaults and the parser chain, nearest
// instance winning.
func (i *Instance) contentParsers() parserSet {
	set := make(parserSet)
	for mediaType, p := range i.app.defaultParsers {
		set[mediaType] = p
	}
	var lineage []*Instance
	for x := i; x != nil; x = x.parent {
		lineage = append(lineage, x)
	}
	for idx := len(lineage) - 1; idx >= 0; idx-- {
		for mediaType, p := range lineage[idx].parsers {
			set[mediaType] = p
		}
	}
	return set
}

func normalizeMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "*" {
		return contentType
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mediaType
}

// parseJSON is the default application/json parser.
func parseJSON(_ Context, body io.Reader) (any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyJSONBody
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, ErrBadRequest(err.Error(), WithErrorCode("ERR_CTP_INVALID_JSON"), WithError(err))
	}
	return v, nil
}

// parseText is the default text/plain parser.
func parseText(_ Context, body io.Reader) (any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// limitedBody fails reads once more than limit bytes have been consumed.
type limitedBody struct {
	r         io.Reader
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrBodyTooLarge
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrBodyTooLarge
	}
	return n, err
}

var schemaName = strings.NewReplacer(" ", "-", "/", "_", ":", "_", "{", "_", "}", "_", "*", "_")

// compileSchema compiles a JSON Schema document. Compile failures are
// registration faults.
func compileSchema(name, source string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, name, err)
	}
	url := "https://arbor.local/schemas/" + schemaName.Replace(name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, name, err)
	}
	return schema, nil
}

// validationMessage flattens a multi-line validation error into one line.
func validationMessage(part string, err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	for idx := range lines {
		lines[idx] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[idx]), "-"))
	}
	return part + " validation failed: " + strings.Join(lines, "; ")
}
