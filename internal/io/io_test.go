package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal-file.flac", "normal-file.flac"},
		{"file:with:colons.flac", "file_with_colons.flac"},
		{"file<with>brackets.flac", "file_with_brackets.flac"},
		{"file/with\\slashes.flac", "file_with_slashes.flac"},
		{"file|with|pipes.flac", "file_with_pipes.flac"},
		{"file?with*wildcards.flac", "file_with_wildcards.flac"},
		{"file\"with\"quotes.flac", "file_with_quotes.flac"},
		{"trailing dots...", "trailing dots"},
		{"multiple   spaces", "multiple spaces"},
		{"trailing spaces   ", "trailing spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeFileName(tt.input); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cover.jpg")

	if err := WriteFileAtomic(context.Background(), path, []byte("first")); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(context.Background(), path, []byte("second")); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the final file, found %d entries", len(entries))
	}
	if !FileExists(path) {
		t.Error("FileExists() = false for written file")
	}
}

func TestWriteFileAtomic_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "x")
	if err := WriteFileAtomic(ctx, path, []byte("x")); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if FileExists(path) {
		t.Error("file should not exist after cancelled write")
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h, mw, mh int
		wantW, wantH int
	}{
		{"already small", 500, 400, 1000, 1000, 500, 400},
		{"wide", 2000, 1000, 1000, 1000, 1000, 500},
		{"tall", 1000, 2000, 1000, 1000, 500, 1000},
		{"square", 1280, 1280, 640, 640, 640, 640},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitWithin(tt.w, tt.h, tt.mw, tt.mh)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("fitWithin() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestImageService_Prepare(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		for y := 0; y < 100; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}

	svc := NewImageService()
	ctx := context.Background()

	t.Run("untouched", func(t *testing.T) {
		out, err := svc.Prepare(ctx, pngBuf.Bytes(), CoverOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, pngBuf.Bytes()) {
			t.Error("expected input to be returned unchanged")
		}
	})

	t.Run("convert and resize", func(t *testing.T) {
		out, err := svc.Prepare(ctx, pngBuf.Bytes(), CoverOptions{Resize: true, MaxSize: 50, JPEG: true})
		if err != nil {
			t.Fatal(err)
		}
		if MimeType(out) != "image/jpeg" {
			t.Fatalf("MimeType = %q, want image/jpeg", MimeType(out))
		}
		img, err := jpeg.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatal(err)
		}
		if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
			t.Errorf("size = %dx%d, want 50x25", b.Dx(), b.Dy())
		}
	})

	t.Run("invalid data", func(t *testing.T) {
		if _, err := svc.Prepare(ctx, []byte("not an image"), CoverOptions{JPEG: true}); err == nil {
			t.Error("expected decode error")
		}
	})
}
