package bootfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpiboot/rpibootd/internal/archive"
	"github.com/rpiboot/rpibootd/internal/chip"
	"github.com/rpiboot/rpibootd/internal/logs"
)

// This package finds the file a device asked for. The places tried,
// first hit wins:
//   - <dir>/<chip prefix>/<name>, when booting from a bundle
//   - <chip prefix>/<name> inside the bundle
//   - <dir>/<usb path>/<name>, when overlays are on
//   - <dir>/<name>
//   - the compiled-in images for the chip

const maxPathLength = 4096

var (
	ErrNotFound    = errors.New("boot file not found")
	ErrUnsafePath  = errors.New("parent directory reference in filename")
	ErrPathTooLong = errors.New("path too long")
)

type Options struct {
	// Directory holds loose boot files
	Directory string
	// Archive is a bundle of boot files; see package archive
	Archive string
	// Overlay enables per-device subdirectories of Directory
	Overlay bool
	// Defaults holds the compiled-in images, may be nil
	Defaults fs.FS
}

// Target is the device a file is resolved for.
type Target struct {
	Generation chip.Generation
	Path       string // usb topology path, e.g. 1-1.3
}

type Resolver struct {
	opts Options
	log  *logs.Logger

	// last extracted bundle member; the File handed out reads from it
	member *archive.Member
}

func New(opts Options, log *logs.Logger) *Resolver {
	return &Resolver{
		opts: opts,
		log:  log,
	}
}

func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve opens name for target. Misses everywhere give ErrNotFound.
func (r *Resolver) Resolve(target Target, name string) (*File, error) {
	if strings.Contains(name, "..") {
		r.log.Logf("refusing %q", name)
		return nil, fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}
	info := target.Generation.Info()

	if r.opts.Archive != "" {
		f, err := r.fromArchive(info, name)
		if f != nil || err != nil {
			return f, err
		}
	}

	if r.opts.Directory != "" {
		f, err := r.fromDirectory(target, name)
		if f != nil || err != nil {
			return f, err
		}
	}

	if f := r.fromDefaults(info, name); f != nil {
		return f, nil
	}

	r.log.Logf("%s not found for %s", name, target.Generation)
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

func (r *Resolver) fromArchive(info chip.Info, name string) (*File, error) {
	dir := r.opts.Directory
	if dir == "" {
		dir = filepath.Dir(r.opts.Archive)
	}
	p, err := joinPath(dir, info.ArchivePrefix, name)
	if err != nil {
		return nil, err
	}
	f, err := r.openLocal(name, p, OriginArchiveOverlay)
	if f != nil || err != nil {
		return f, err
	}

	memberName := info.ArchivePrefix + "/" + name
	m, err := archive.Lookup(r.opts.Archive, memberName)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			r.log.Logf("%s not in %s", memberName, r.opts.Archive)
			return nil, nil
		}
		if errors.Is(err, archive.ErrCorrupt) {
			return nil, err
		}
		r.log.Logf("reading %s failed: %s", r.opts.Archive, err)
		return nil, nil
	}
	r.log.Logf("extracted %s from %s, %d bytes", memberName, r.opts.Archive, m.Size)
	r.member = m
	return newMemoryFile(name, r.opts.Archive+":"+memberName, OriginArchive, m.Data), nil
}

func (r *Resolver) fromDirectory(target Target, name string) (*File, error) {
	if r.opts.Overlay && target.Path != "" && !chip.IsSecondStage(name) {
		p, err := joinPath(r.opts.Directory, target.Path, name)
		if err != nil {
			return nil, err
		}
		f, err := r.openLocal(name, p, OriginDeviceOverlay)
		if f != nil || err != nil {
			return f, err
		}
	}

	p, err := joinPath(r.opts.Directory, name)
	if err != nil {
		return nil, err
	}
	return r.openLocal(name, p, OriginDirectory)
}

func (r *Resolver) fromDefaults(info chip.Info, name string) *File {
	p, ok := info.Defaults[name]
	if !ok || r.opts.Defaults == nil {
		return nil
	}
	data, err := fs.ReadFile(r.opts.Defaults, p)
	if err != nil {
		r.log.Logf("default image %s: %s", p, err)
		return nil
	}
	return newMemoryFile(name, p, OriginDefault, data)
}

// openLocal returns nil without error when p is not a readable
// regular file, so the next location gets tried.
func (r *Resolver) openLocal(name, p string, origin Origin) (*File, error) {
	f, err := os.Open(p)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Logf("cannot open %s: %s", p, err)
		}
		return nil, nil
	}
	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		f.Close()
		return nil, nil
	}
	r.log.Logf("using %s (%s)", p, origin)
	return &File{
		name:   name,
		path:   p,
		origin: origin,
		size:   st.Size(),
		r:      f,
		c:      f,
	}, nil
}

func joinPath(elem ...string) (string, error) {
	p := filepath.Join(elem...)
	if len(p) > maxPathLength {
		return "", fmt.Errorf("%.64s...: %w", p, ErrPathTooLong)
	}
	return p, nil
}
