package bootfiles

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rpiboot/rpibootd/internal/archive"
	"github.com/rpiboot/rpibootd/internal/chip"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeBundle(t *testing.T, path string, members map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range members {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, buf.String())
}

func readAll(t *testing.T, f *File) string {
	t.Helper()
	defer f.Close()
	data, err := f.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

var defaults = fstest.MapFS{
	"msd/start4.elf":    {Data: []byte("default start4")},
	"msd/bootcode4.bin": {Data: []byte("default bootcode4")},
}

var pi4 = Target{Generation: chip.Gen2711, Path: "1-1.3"}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bootfiles.bin")
	writeBundle(t, bundle, map[string]string{"2711/start4.elf": "archive start4"})
	writeFile(t, filepath.Join(dir, "2711", "start4.elf"), "overlay start4")

	r := New(Options{Directory: dir, Archive: bundle, Defaults: defaults}, nil)

	f, err := r.Resolve(pi4, "start4.elf")
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin() != OriginArchiveOverlay || readAll(t, f) != "overlay start4" {
		t.Errorf("expected the overlay, got %s", f.Origin())
	}

	if err := os.Remove(filepath.Join(dir, "2711", "start4.elf")); err != nil {
		t.Fatal(err)
	}
	f, err = r.Resolve(pi4, "start4.elf")
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin() != OriginArchive || f.Size() != int64(len("archive start4")) || readAll(t, f) != "archive start4" {
		t.Errorf("expected the archive member, got %s", f.Origin())
	}

	r = New(Options{Directory: dir, Defaults: defaults}, nil)
	f, err = r.Resolve(pi4, "start4.elf")
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin() != OriginDefault || readAll(t, f) != "default start4" {
		t.Errorf("expected the default, got %s", f.Origin())
	}
}

func TestResolveRejectsParentReferences(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "..config.txt"), "sneaky")
	writeFile(t, filepath.Join(dir, "sub", "x.txt"), "x")

	r := New(Options{Directory: dir, Overlay: true, Defaults: defaults}, nil)
	for _, name := range []string{"..config.txt", "../etc/passwd", "sub/../sub/x.txt", ".."} {
		f, err := r.Resolve(pi4, name)
		if !errors.Is(err, ErrUnsafePath) || f != nil {
			t.Errorf("Resolve(%q): expected ErrUnsafePath, got %v", name, err)
		}
	}
}

func TestResolveDeviceOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.txt"), "base config")
	writeFile(t, filepath.Join(dir, "1-1.3", "config.txt"), "device config")
	writeFile(t, filepath.Join(dir, "bootcode4.bin"), "base bootcode")
	writeFile(t, filepath.Join(dir, "1-1.3", "bootcode4.bin"), "device bootcode")

	r := New(Options{Directory: dir, Overlay: true}, nil)

	f, err := r.Resolve(pi4, "config.txt")
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin() != OriginDeviceOverlay || readAll(t, f) != "device config" {
		t.Errorf("expected the device overlay, got %s", f.Origin())
	}

	f, err = r.Resolve(pi4, "bootcode4.bin")
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin() != OriginDirectory || readAll(t, f) != "base bootcode" {
		t.Errorf("second stage must come from the base directory, got %s", f.Origin())
	}

	// another device falls back to the base directory
	f, err = r.Resolve(Target{Generation: chip.Gen2711, Path: "1-1.4"}, "config.txt")
	if err != nil {
		t.Fatal(err)
	}
	if readAll(t, f) != "base config" {
		t.Error("expected the base config")
	}

	// overlays off
	r = New(Options{Directory: dir}, nil)
	f, err = r.Resolve(pi4, "config.txt")
	if err != nil {
		t.Fatal(err)
	}
	if readAll(t, f) != "base config" {
		t.Error("overlay used although disabled")
	}
}

func TestResolveNotFound(t *testing.T) {
	r := New(Options{Directory: t.TempDir(), Defaults: defaults}, nil)

	// defaults only cover a fixed set of names
	_, err := r.Resolve(pi4, "kernel8.img")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// and only for the right chip
	_, err = r.Resolve(Target{Generation: chip.Gen2835}, "start4.elf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// a directory with the file's name is not a file
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config.txt"), 0755); err != nil {
		t.Fatal(err)
	}
	r = New(Options{Directory: dir}, nil)
	_, err = r.Resolve(pi4, "config.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	raw := make([]byte, 1024)
	copy(raw, "2711/start4.elf\x00")
	copy(raw[124:], "77777777\x00")
	bundle := filepath.Join(dir, "bootfiles.bin")
	writeFile(t, bundle, string(raw))

	r := New(Options{Archive: bundle, Defaults: defaults}, nil)
	_, err := r.Resolve(pi4, "start4.elf")
	if !errors.Is(err, archive.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestResolvePathTooLong(t *testing.T) {
	r := New(Options{Directory: t.TempDir()}, nil)
	_, err := r.Resolve(pi4, strings.Repeat("a", maxPathLength))
	if !errors.Is(err, ErrPathTooLong) {
		t.Errorf("expected ErrPathTooLong, got %v", err)
	}
}

func TestArchiveWithoutDirectoryUsesBundleDirectory(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bootfiles.bin")
	writeBundle(t, bundle, map[string]string{"2712/config.txt": "bundled"})
	writeFile(t, filepath.Join(dir, "2712", "config.txt"), "local")

	r := New(Options{Archive: bundle}, nil)
	f, err := r.Resolve(Target{Generation: chip.Gen2712}, "config.txt")
	if err != nil {
		t.Fatal(err)
	}
	if readAll(t, f) != "local" {
		t.Error("expected the overlay next to the bundle")
	}
}
