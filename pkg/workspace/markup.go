package workspace

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidMarkup marks component state attributes or bodies that would not
// survive being written into an XML element.
var ErrInvalidMarkup = errors.New("invalid state markup")

// ParseAttribute decodes one `key="value"` fragment. The fragment must hold
// exactly one attribute, and that attribute must not be "name", which the
// state's own name occupies.
func ParseAttribute(fragment string) (xml.Attr, error) {
	d := xml.NewDecoder(strings.NewReader("<a " + fragment + "/>"))
	var (
		attr    xml.Attr
		started bool
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return xml.Attr{}, fmt.Errorf("%w: attribute %q: %v", ErrInvalidMarkup, fragment, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if started || len(t.Attr) != 1 {
				return xml.Attr{}, fmt.Errorf("%w: attribute %q must hold one key=\"value\" pair", ErrInvalidMarkup, fragment)
			}
			attr = t.Attr[0]
			started = true
		case xml.EndElement:
		default:
			return xml.Attr{}, fmt.Errorf("%w: attribute %q must hold one key=\"value\" pair", ErrInvalidMarkup, fragment)
		}
	}
	if attr.Name.Space == "" && attr.Name.Local == FieldName {
		return xml.Attr{}, fmt.Errorf("%w: attribute %q overrides the state name", ErrInvalidMarkup, fragment)
	}
	return attr, nil
}

// CheckStateMarkup validates the attributes and body of a component or
// sub-state. The body must be well-formed element content.
func CheckStateMarkup(attributes []string, body string) error {
	seen := make(map[xml.Name]struct{}, len(attributes))
	for _, fragment := range attributes {
		attr, err := ParseAttribute(fragment)
		if err != nil {
			return err
		}
		if _, dup := seen[attr.Name]; dup {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidMarkup, attr.Name.Local)
		}
		seen[attr.Name] = struct{}{}
	}
	if body == "" {
		return nil
	}
	d := xml.NewDecoder(strings.NewReader("<a>" + body + "</a>"))
	depth := 0
	closed := false
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: body: %v", ErrInvalidMarkup, err)
		}
		if closed {
			return fmt.Errorf("%w: body closes its enclosing element", ErrInvalidMarkup)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			closed = depth == 0
		}
	}
	return nil
}
