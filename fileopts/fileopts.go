// Package fileopts implements declarative open-for-read / open-for-write
// file handles with atomic convenience calls. It is the Go counterpart of
// original_source/src/file_options.rs.
package fileopts

import (
	"io"
	"os"
	"path/filepath"

	"github.com/banksean/orchestra/orcherr"
	"github.com/banksean/orchestra/pathutil"
)

// WriteOptions controls how a write-mode FileOptions opens its file.
type WriteOptions struct {
	Create bool
	Append bool
}

// Mode is the tagged Read/Write variant of a FileOptions value.
type Mode struct {
	Write   *WriteOptions
	isWrite bool
}

// Read is the read-mode Mode constructor.
func Read() Mode { return Mode{} }

// WriteMode is the write-mode Mode constructor.
func WriteMode(opts WriteOptions) Mode { return Mode{Write: &opts, isWrite: true} }

// FileOptions is a declarative path + mode pair.
type FileOptions struct {
	Path string
	Mode Mode
}

// ReadOpts builds a FileOptions for reading path.
func ReadOpts(path string) FileOptions { return FileOptions{Path: path, Mode: Read()} }

// WriteOpts builds a FileOptions for writing path, truncating by default.
func WriteOpts(path string) FileOptions {
	return FileOptions{Path: path, Mode: WriteMode(WriteOptions{Create: true})}
}

// Create marks this FileOptions to create the file if missing.
func (f FileOptions) Create() FileOptions {
	if f.Mode.Write == nil {
		f.Mode = WriteMode(WriteOptions{})
	}
	f.Mode.Write.Create = true
	return f
}

// Append marks this FileOptions to append instead of truncate.
func (f FileOptions) Append() FileOptions {
	if f.Mode.Write == nil {
		f.Mode = WriteMode(WriteOptions{})
	}
	f.Mode.Write.Append = true
	return f
}

// Preacquire verifies the parent directory exists (and, for read mode,
// that the file itself exists), returning the canonical path.
func (f FileOptions) Preacquire() (string, error) {
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindPath, err, "resolve absolute path "+f.Path)
	}
	parent, err := pathutil.AcquireDirPath(filepath.Dir(abs))
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindPath, err, "parent directory does not exist: "+filepath.Dir(abs))
	}
	abs = filepath.Join(parent, filepath.Base(abs))
	if !f.Mode.isWrite {
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			return "", orcherr.New(orcherr.KindPath, "file does not exist: "+abs)
		}
	}
	return abs, nil
}

// AcquireFile performs Preacquire then opens the file according to Mode.
func (f FileOptions) AcquireFile() (*os.File, error) {
	abs, err := f.Preacquire()
	if err != nil {
		return nil, err
	}
	if !f.Mode.isWrite {
		file, err := os.Open(abs)
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindIO, err, "open "+abs)
		}
		return file, nil
	}

	w := f.Mode.Write
	flags := os.O_RDWR
	switch {
	case w.Create && w.Append:
		flags |= os.O_CREATE | os.O_APPEND
	case w.Create && !w.Append:
		flags |= os.O_CREATE | os.O_TRUNC
	case !w.Create && w.Append:
		flags |= os.O_APPEND
		if _, err := os.Stat(abs); err != nil {
			return nil, orcherr.New(orcherr.KindPath, "file does not exist and create=false: "+abs)
		}
	default:
		if _, err := os.Stat(abs); err != nil {
			return nil, orcherr.New(orcherr.KindPath, "file does not exist and create=false: "+abs)
		}
	}
	file, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindIO, err, "open "+abs)
	}
	return file, nil
}

// ReadToString is the read(path) shorthand.
func ReadToString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindIO, err, "read "+path)
	}
	return string(b), nil
}

// WriteString is the write_str(path, s) shorthand: create+truncate.
func WriteString(path, s string) error {
	f, err := WriteOpts(path).AcquireFile()
	if err != nil {
		return err
	}
	defer CloseFile(f)
	if _, err := f.WriteString(s); err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "write "+path)
	}
	return nil
}

// Copy streams bytes from src to dst without copying permissions.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "open source "+src)
	}
	defer in.Close()

	out, err := WriteOpts(dst).AcquireFile()
	if err != nil {
		return err
	}
	defer CloseFile(out)

	if _, err := io.Copy(out, in); err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "copy "+src+" -> "+dst)
	}
	return nil
}

// CloseFile flushes and fsyncs f before closing, matching the original's
// close_file helper: callers must not skip this after writing.
func CloseFile(f *os.File) error {
	if err := f.Sync(); err != nil {
		f.Close()
		return orcherr.Wrap(orcherr.KindIO, err, "fsync "+f.Name())
	}
	if err := f.Close(); err != nil {
		return orcherr.Wrap(orcherr.KindIO, err, "close "+f.Name())
	}
	return nil
}
