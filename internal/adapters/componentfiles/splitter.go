// Package componentfiles stores component states as a directory of XML files
// on a blob store. Each component owns the "<component>/" prefix: one file per
// sub-state plus a main file carrying the root element.
//
// A sub-state file looks like
//
//	<component name="RunManager">
//	  <sub name="foo" />
//	</component>
//
// and the main file wraps the component root the same way.
package componentfiles

import (
	"fmt"
	"strings"
)

const fileExt = ".xml"

// Splitter decides file and tag names for a component directory.
type Splitter struct {
	// MainFileName is the base name of the file holding the root element.
	MainFileName string
	// SubStateTag is the element name written for each sub-state.
	SubStateTag string
}

// DefaultSplitter writes "main.xml" and "<sub>" elements.
func DefaultSplitter() Splitter {
	return Splitter{MainFileName: "main", SubStateTag: "sub"}
}

func (s Splitter) withDefaults() Splitter {
	d := DefaultSplitter()
	if s.MainFileName == "" {
		s.MainFileName = d.MainFileName
	}
	if s.SubStateTag == "" {
		s.SubStateTag = d.SubStateTag
	}
	return s
}

// Dir returns the key prefix of a component, including the trailing slash.
func (s Splitter) Dir(component string) string {
	return FileName(component) + "/"
}

// MainKey returns the key of a component's main file.
func (s Splitter) MainKey(component string) string {
	return s.Dir(component) + FileName(s.MainFileName) + fileExt
}

// SubStateKey returns the key of one sub-state file. A sub-state whose file
// name is the main file name, optionally followed by "_sub" suffixes, gets
// one more "_sub" so it never meets the main file or another sub-state.
func (s Splitter) SubStateKey(component, subState string) string {
	base := FileName(subState)
	mainBase := FileName(s.MainFileName)
	for rest := base; ; rest = strings.TrimSuffix(rest, "_sub") {
		if rest == mainBase {
			base += "_sub"
			break
		}
		if !strings.HasSuffix(rest, "_sub") {
			break
		}
	}
	return s.Dir(component) + base + fileExt
}

// FileName maps a state name onto a single path segment. Unsafe bytes and
// surrounding blanks are written as %XX, so distinct names never share a
// segment.
func FileName(name string) string {
	switch name {
	case "":
		return "%"
	case ".":
		return "%2E"
	}
	var b strings.Builder
	last := len(name) - 1
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c == 0x7f || strings.IndexByte(`/\:*?"<>|%`, c) >= 0 || (c == ' ' && (i == 0 || i == last)) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	out := b.String()
	if strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, ".", "%2E")
	}
	return out
}
