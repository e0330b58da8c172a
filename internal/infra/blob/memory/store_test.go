package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"workspacemodel/internal/blob/core"
)

func TestStore_PutGetReplaceDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}

	meta := map[string]string{"component": "RunManager"}
	info, err := s.Put(ctx, "RunManager/foo.xml", strings.NewReader("<a/>"), core.PutOptions{ContentType: "application/xml", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 {
		t.Fatalf("size = %d, want 4", info.Size)
	}
	meta["component"] = "mutated"

	if _, err := s.Put(ctx, "RunManager/foo.xml", strings.NewReader("<b/>"), core.PutOptions{}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, rc, err := s.Get(ctx, "RunManager/foo.xml")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != "<b/>" {
		t.Fatalf("read = %q, %v", data, err)
	}
	if len(got.Metadata) != 0 {
		t.Fatalf("replace kept metadata %v", got.Metadata)
	}

	if existed, err := s.Delete(ctx, "RunManager/foo.xml"); err != nil || !existed {
		t.Fatalf("delete = %v, %v", existed, err)
	}
	if existed, err := s.Delete(ctx, "RunManager/foo.xml"); err != nil || existed {
		t.Fatalf("second delete = %v, %v", existed, err)
	}
	if _, _, err := s.Get(ctx, "RunManager/foo.xml"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if _, err := s.Head(ctx, "RunManager/foo.xml"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head after delete: %v", err)
	}
}

func TestStore_ListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"b/2.xml", "a/1.xml", "b/1.xml"} {
		if _, err := s.Put(ctx, k, bytes.NewReader(nil), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	cases := []struct {
		prefix string
		want   []string
	}{
		{"b/", []string{"b/1.xml", "b/2.xml"}},
		{"", []string{"a/1.xml", "b/1.xml", "b/2.xml"}},
		{"c/", nil},
	}
	for _, tc := range cases {
		list, err := s.List(ctx, tc.prefix)
		if err != nil {
			t.Fatalf("list %q: %v", tc.prefix, err)
		}
		if len(list) != len(tc.want) {
			t.Fatalf("list %q: got %d entries, want %d", tc.prefix, len(list), len(tc.want))
		}
		for i, info := range list {
			if info.Key != tc.want[i] {
				t.Fatalf("list %q [%d] = %s, want %s", tc.prefix, i, info.Key, tc.want[i])
			}
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutRejectsBadInput(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected blank key error")
	}
	if _, err := s.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
}
