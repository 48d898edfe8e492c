package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePdftoppm writes n page files for the prefix passed as the last argument.
type fakePdftoppm struct {
	mu    sync.Mutex
	pages map[string]int // pdf path -> rendered pages
	calls [][]string
}

func (f *fakePdftoppm) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	switch name {
	case "pdftoppm":
		in, prefix := args[len(args)-2], args[len(args)-1]
		n, ok := f.pages[in]
		if !ok {
			return nil, []byte("Syntax Error: Couldn't read xref table"), errors.New("exit status 1")
		}
		last := n
		for i, a := range args {
			if a == "-l" {
				last, _ = strconv.Atoi(args[i+1])
			}
		}
		if last > n {
			last = n
		}
		ext := ".jpg"
		for _, a := range args {
			if a == "-png" {
				ext = ".png"
			}
		}
		for p := 1; p <= last; p++ {
			file := fmt.Sprintf("%s-%02d%s", prefix, p, ext)
			if err := os.WriteFile(file, []byte("img"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "magick":
		return nil, nil, os.WriteFile(args[len(args)-1], []byte("png"), 0o600)
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return p
}

func TestRasterize_PDFAndImages(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	pdfA := touch(t, src, "invoice_A.pdf")
	imgB := touch(t, src, "invoice_B.jpg")

	runner := &fakePdftoppm{pages: map[string]int{pdfA: 2}}
	z := NewRasterizer(Config{OutputDir: out, Workers: 2}, nil,
		WithRunner(runner),
		WithPageCounter(func(string) (int, error) { return 2, nil }),
	)

	got := z.Rasterize(context.Background(), []string{pdfA, imgB})
	require.Len(t, got, 2)

	a := got["invoice_A"]
	require.Len(t, a, 2)
	for i, p := range a {
		assert.Equal(t, "invoice_A", p.DocumentID)
		assert.Equal(t, i, p.PageIndex)
		assert.Equal(t, filepath.Join(out, "invoice_A", fmt.Sprintf("invoice_A_page-%02d.jpg", i+1)), p.ImagePath)
	}

	b := got["invoice_B"]
	require.Len(t, b, 1)
	assert.Equal(t, imgB, b[0].ImagePath)
	assert.Equal(t, 0, b[0].PageIndex)
}

func TestRasterize_CorruptPDFYieldsEmptyPages(t *testing.T) {
	src := t.TempDir()
	bad := touch(t, src, "broken.pdf")
	good := touch(t, src, "scan.png")

	z := NewRasterizer(Config{OutputDir: t.TempDir()}, nil,
		WithRunner(&fakePdftoppm{}),
		WithPageCounter(func(string) (int, error) { return 0, errors.New("pdfcpu: corrupt xref") }),
	)

	got := z.Rasterize(context.Background(), []string{bad, good})
	require.Contains(t, got, "broken")
	assert.Empty(t, got["broken"])
	assert.Len(t, got["scan"], 1)
}

func TestRasterize_MissingAndUnsupportedSources(t *testing.T) {
	src := t.TempDir()
	txt := touch(t, src, "notes.txt")

	z := NewRasterizer(Config{OutputDir: t.TempDir()}, nil, WithRunner(&fakePdftoppm{}))
	got := z.Rasterize(context.Background(), []string{filepath.Join(src, "gone.pdf"), txt})
	assert.Empty(t, got["gone"])
	assert.Empty(t, got["notes"])
}

func TestRasterize_MaxPagesAndPNG(t *testing.T) {
	src := t.TempDir()
	pdf := touch(t, src, "long.pdf")
	runner := &fakePdftoppm{pages: map[string]int{pdf: 12}}

	z := NewRasterizer(Config{OutputDir: t.TempDir(), MaxPages: 3, Format: "png", DPI: 150}, nil,
		WithRunner(runner),
		WithPageCounter(func(string) (int, error) { return 12, nil }),
	)
	pages, err := z.RasterizeFile(context.Background(), pdf)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, ".png", filepath.Ext(pages[2].ImagePath))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"pdftoppm", "-r", "150", "-png", "-f", "1", "-l", "3", pdf, filepath.Join(z.cfg.OutputDir, "long", "long_page")}, runner.calls[0])
}

func TestRasterize_PatternCharactersInStem(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	pdf := touch(t, src, "invoice[1].pdf")
	docDir := filepath.Join(out, "invoice[1]")
	require.NoError(t, os.MkdirAll(docDir, 0o755))
	stale := touch(t, docDir, "invoice[1]_page-07.jpg")
	other := touch(t, docDir, "notes_page-01.jpg")

	z := NewRasterizer(Config{OutputDir: out}, nil,
		WithRunner(&fakePdftoppm{pages: map[string]int{pdf: 2}}),
		WithPageCounter(func(string) (int, error) { return 2, nil }),
	)
	got := z.Rasterize(context.Background(), []string{pdf})
	pages := got["invoice[1]"]
	require.Len(t, pages, 2)
	for i, p := range pages {
		assert.Equal(t, i, p.PageIndex)
		assert.Equal(t, filepath.Join(docDir, fmt.Sprintf("invoice[1]_page-%02d.jpg", i+1)), p.ImagePath)
	}
	assert.NoFileExists(t, stale)
	assert.FileExists(t, other)
}

func TestPageNumber(t *testing.T) {
	n, ok := pageNumber("a[1]_page-010.png", "a[1]_page", ".png")
	assert.True(t, ok)
	assert.Equal(t, 10, n)

	for _, name := range []string{"a[1]_page-x.png", "a[1]_page-1.jpg", "b_page-1.png", "a[1]_page-0.png"} {
		_, ok := pageNumber(name, "a[1]_page", ".png")
		assert.False(t, ok, name)
	}
}

func TestRasterize_SameStemMergedInInputOrder(t *testing.T) {
	src := t.TempDir()
	pdf := touch(t, src, "inv.pdf")
	img := touch(t, src, "inv.png")
	runner := &fakePdftoppm{pages: map[string]int{pdf: 2}}

	z := NewRasterizer(Config{OutputDir: t.TempDir(), Workers: 4}, nil,
		WithRunner(runner),
		WithPageCounter(func(string) (int, error) { return 2, nil }),
	)
	got := z.Rasterize(context.Background(), []string{img, pdf})
	pages := got["inv"]
	require.Len(t, pages, 3)
	assert.Equal(t, img, pages[0].ImagePath)
	for i, p := range pages {
		assert.Equal(t, i, p.PageIndex)
	}
}

func TestRasterize_HEICConvertedIntoDocumentDir(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	heic := touch(t, src, "photo.HEIC")

	z := NewRasterizer(Config{OutputDir: out, HeicConverter: "magick"}, nil, WithRunner(&fakePdftoppm{}))
	pages, err := z.RasterizeFile(context.Background(), heic)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, filepath.Join(out, "photo", "photo.png"), pages[0].ImagePath)

	z = NewRasterizer(Config{OutputDir: out, HeicConverter: "paint"}, nil, WithRunner(&fakePdftoppm{}))
	_, err = z.RasterizeFile(context.Background(), heic)
	assert.Error(t, err)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "invoice_A", DocumentID("/data/in/invoice_A.pdf"))
	assert.Equal(t, "scan.final", DocumentID("scan.final.jpg"))
	assert.Equal(t, "README", DocumentID("README"))
}
