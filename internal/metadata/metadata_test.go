package metadata

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordWritesFlatObject(t *testing.T) {
	dir := t.TempDir()
	r, err := Create(dir, "1a2b3c4d")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add("MAC_ADDR", "dc:a6:32:00:00:01"); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(FactoryUUID, `A"B`); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "1a2b3c4d.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("not valid JSON %q: %v", raw, err)
	}
	if got["MAC_ADDR"] != "dc:a6:32:00:00:01" || got[FactoryUUID] != `A"B` {
		t.Errorf("unexpected content %v", got)
	}

	if err := r.Add("LATE", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if len(r.Pairs()) != 2 || r.Pairs()[0].Property != "MAC_ADDR" {
		t.Errorf("unexpected pairs %v", r.Pairs())
	}
}

func TestEmptyRecord(t *testing.T) {
	dir := t.TempDir()
	r, err := Create(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "unknown.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "{}\n" {
		t.Errorf("unexpected content %q", raw)
	}
}

func TestFileName(t *testing.T) {
	testcases := map[string]string{
		"abc":   "abc.json",
		"a/b":   "a_b.json",
		"..":    "unknown.json",
		"":      "unknown.json",
		`a\b.c`: "a_b.c.json",
	}
	for in, want := range testcases {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, expected %q", in, got, want)
		}
	}
}
