package componentfiles

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"workspacemodel/pkg/workspace"
)

const rootTag = "component"

type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

type document struct {
	XMLName  xml.Name  `xml:"component"`
	Name     string    `xml:"name,attr"`
	Children []element `xml:",any"`
}

// renderFile wraps one element in the component envelope. Attributes and
// body are spliced verbatim once they pass workspace.CheckStateMarkup.
func renderFile(component, tag, name string, attributes []string, body string) ([]byte, error) {
	if err := workspace.CheckStateMarkup(attributes, body); err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.WriteString("<" + rootTag + ` name="`)
	escape(&b, component)
	b.WriteString("\">\n  <" + tag + ` name="`)
	escape(&b, name)
	b.WriteString(`"`)
	for _, attr := range attributes {
		b.WriteString(" " + attr)
	}
	if body == "" {
		b.WriteString(" />\n")
	} else {
		b.WriteString(">" + body + "</" + tag + ">\n")
	}
	b.WriteString("</" + rootTag + ">")
	return b.Bytes(), nil
}

func escape(b *bytes.Buffer, s string) {
	_ = xml.EscapeText(b, []byte(s))
}

// parseFile decodes a component file. Blank content parses as nothing.
func parseFile(data []byte) (document, bool, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return document{}, false, nil
	}
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return document{}, false, fmt.Errorf("parse component file: %w", err)
	}
	return doc, true, nil
}

// split separates the name attribute from the remaining attributes, which
// are returned in document order as `key="value"` fragments.
func (e element) split() (string, []string) {
	var (
		name  string
		attrs []string
	)
	for _, a := range e.Attrs {
		if a.Name.Space == "" && a.Name.Local == "name" {
			name = a.Value
			continue
		}
		var b bytes.Buffer
		b.WriteString(qualified(a.Name) + `="`)
		escape(&b, a.Value)
		b.WriteString(`"`)
		attrs = append(attrs, b.String())
	}
	return name, attrs
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func (e element) body() string {
	if strings.TrimSpace(e.Inner) == "" {
		return ""
	}
	return e.Inner
}
