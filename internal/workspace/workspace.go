// Package workspace manages the private scratch directory of one track
// download. Each fetched segment lands in its own slot file, named by
// segment index, until the assembler stitches the slots together.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	ioutils "github.com/handiism/tidal-downloader/internal/io"
)

// DirPrefix prefixes every workspace directory name.
const DirPrefix = ".temp_"

// Workspace is a per-track directory holding one file per segment.
//
// Distinct indices may be written concurrently. Writing the same index
// twice replaces the earlier slot.
type Workspace struct {
	dir string
}

// New creates a fresh workspace directory under parent.
func New(parent string) (*Workspace, error) {
	if err := ioutils.EnsureDir(parent); err != nil {
		return nil, fmt.Errorf("create workspace parent: %w", err)
	}
	name := DirPrefix + uuid.NewString()[:8]
	dir := filepath.Join(parent, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// SlotPath returns the file path of the slot for index.
func (w *Workspace) SlotPath(index int) string {
	return filepath.Join(w.dir, "seg_"+strconv.Itoa(index)+".part")
}

// WriteSlot stores the bytes of segment index. The slot only becomes
// visible once fully written.
func (w *Workspace) WriteSlot(ctx context.Context, index int, data []byte) error {
	if err := ioutils.WriteFileAtomic(ctx, w.SlotPath(index), data); err != nil {
		return fmt.Errorf("write slot %d: %w", index, err)
	}
	return nil
}

// OpenSlot opens the slot of segment index for reading.
func (w *Workspace) OpenSlot(index int) (io.ReadCloser, error) {
	f, err := os.Open(w.SlotPath(index))
	if err != nil {
		return nil, fmt.Errorf("open slot %d: %w", index, err)
	}
	return f, nil
}

// Has reports whether the slot of segment index has been written.
func (w *Workspace) Has(index int) bool {
	_, err := os.Stat(w.SlotPath(index))
	return err == nil
}

// Remove deletes the workspace and every slot in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.dir)
}
