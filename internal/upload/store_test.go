package upload

import (
	"io"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ref, err := store.Save("design v2.pdf", strings.NewReader("content"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ref, "/uploads/") {
		t.Fatalf("ref = %q, want /uploads/ prefix", ref)
	}
	if strings.Contains(ref, " ") {
		t.Fatalf("ref %q contains spaces", ref)
	}
	f, err := store.Open(ref)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Fatalf("data = %q", data)
	}
}

func TestDistinctUploadsSameName(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := store.Save("a.pdf", strings.NewReader("one"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Save("a.pdf", strings.NewReader("two"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("same reference for distinct uploads: %q", a)
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Open("/uploads/../secret"); err == nil {
		t.Fatalf("traversal reference accepted")
	}
}
