// Package assemble concatenates fetched segments into the final track file.
//
// Assembly is split in two steps so that a track can be tagged before it
// becomes visible: Assemble writes a staged file next to the final path,
// and Commit renames it into place.
//
//	staged, err := assemble.Assemble(ctx, ws, m.Len(), "/music/Album/01. Artist - Title.flac")
//	if err != nil {
//	    return err
//	}
//	defer staged.Discard()
//	// tag staged.Path() ...
//	return staged.Commit()
package assemble

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ioutils "github.com/handiism/tidal-downloader/internal/io"
)

// SlotReader gives access to fetched segments. *workspace.Workspace
// implements it.
type SlotReader interface {
	OpenSlot(index int) (io.ReadCloser, error)
}

// AssemblyError reports a failure to build or publish the output file.
type AssemblyError struct {
	Op   string
	Path string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// Staged is an assembled file waiting to be committed to its final path.
type Staged struct {
	path      string
	finalPath string
	done      bool
}

// Assemble copies slots 0..n-1 of ws, in index order, into a temporary
// file in the directory of finalPath. The temporary name keeps the final
// extension so taggers can recognise the format.
//
// Nothing is created at finalPath. On failure the temporary file is
// removed and an *AssemblyError is returned.
func Assemble(ctx context.Context, ws SlotReader, n int, finalPath string) (*Staged, error) {
	dir := filepath.Dir(finalPath)
	if err := ioutils.EnsureDir(dir); err != nil {
		return nil, &AssemblyError{Op: "mkdir", Path: dir, Err: err}
	}

	out, err := os.CreateTemp(dir, ".tmp-*-"+filepath.Base(finalPath))
	if err != nil {
		return nil, &AssemblyError{Op: "create", Path: finalPath, Err: err}
	}
	tmpPath := out.Name()

	fail := func(op string, err error) (*Staged, error) {
		out.Close()
		os.Remove(tmpPath)
		return nil, &AssemblyError{Op: op, Path: tmpPath, Err: err}
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return fail("copy", err)
		}
		if err := copySlot(out, ws, i); err != nil {
			return fail("copy", err)
		}
	}
	if err := out.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, &AssemblyError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return nil, &AssemblyError{Op: "chmod", Path: tmpPath, Err: err}
	}

	return &Staged{path: tmpPath, finalPath: finalPath}, nil
}

func copySlot(w io.Writer, ws SlotReader, index int) error {
	rc, err := ws.OpenSlot(index)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("slot %d: %w", index, err)
	}
	return nil
}

// Path returns the staged file, which may be modified before Commit.
func (s *Staged) Path() string { return s.path }

// FinalPath returns where Commit will place the file.
func (s *Staged) FinalPath() string { return s.finalPath }

// Commit renames the staged file to its final path. On failure the staged
// file is removed.
func (s *Staged) Commit() error {
	if s.done {
		return &AssemblyError{Op: "commit", Path: s.finalPath, Err: os.ErrClosed}
	}
	s.done = true
	if err := os.Rename(s.path, s.finalPath); err != nil {
		os.Remove(s.path)
		return &AssemblyError{Op: "commit", Path: s.finalPath, Err: err}
	}
	return nil
}

// Discard removes the staged file. It is a no-op after Commit or a
// previous Discard.
func (s *Staged) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
