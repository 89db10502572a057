package image

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manash/prodstudio/internal/security"
	"github.com/manash/prodstudio/pkg/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testLoader() *Loader {
	l := NewLoader()
	l.validator = &security.URLValidator{AllowPrivate: true}
	return l
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeTemp(t, "bottle.png", pngHeader)

	img, err := testLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
	}
	if img.Name != "bottle.png" {
		t.Errorf("Name = %q, want bottle.png", img.Name)
	}
	if !bytes.Equal(img.Data, pngHeader) {
		t.Error("Data mismatch")
	}
}

func TestLoader_LoadMissingFile(t *testing.T) {
	_, err := testLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
}

func TestLoader_LoadNotAnImage(t *testing.T) {
	path := writeTemp(t, "notes.txt", []byte("just some text"))

	_, err := testLoader().Load(context.Background(), path)
	if !errors.Is(err, models.ErrUnsupportedMIME) {
		t.Errorf("Load() error = %v, want %v", err, models.ErrUnsupportedMIME)
	}
}

func TestLoader_TooLarge(t *testing.T) {
	path := writeTemp(t, "big.png", append(pngHeader, make([]byte, 64)...))
	l := testLoader()
	l.maxBytes = 16

	_, err := l.Load(context.Background(), path)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Load() error = %v, want %v", err, ErrTooLarge)
	}
}

func TestLoader_LoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	}))
	defer server.Close()

	img, err := testLoader().Load(context.Background(), server.URL+"/shots/mug.png?v=2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.Name != "mug.png" {
		t.Errorf("Name = %q, want mug.png", img.Name)
	}
}

func TestLoader_LoadURLStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := testLoader().Load(context.Background(), server.URL); err == nil {
		t.Fatal("Load() error = nil, want status error")
	}
}

func TestLoader_LoadURLPrivateRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	}))
	defer server.Close()

	_, err := NewLoader().Load(context.Background(), server.URL)
	if !errors.Is(err, security.ErrInvalidScheme) {
		t.Errorf("Load() error = %v, want %v", err, security.ErrInvalidScheme)
	}
}

func TestLoader_LoadPair(t *testing.T) {
	subj := writeTemp(t, "subject.png", pngHeader)
	ref := writeTemp(t, "ref.png", pngHeader)
	l := testLoader()

	s, r, err := l.LoadPair(context.Background(), subj, ref)
	if err != nil {
		t.Fatalf("LoadPair() error = %v", err)
	}
	if s == nil || r == nil {
		t.Fatalf("LoadPair() = %v, %v, want both", s, r)
	}

	s, r, err = l.LoadPair(context.Background(), subj, "")
	if err != nil {
		t.Fatalf("LoadPair() error = %v", err)
	}
	if s == nil || r != nil {
		t.Errorf("LoadPair() without reference = %v, %v", s, r)
	}

	if _, _, err := l.LoadPair(context.Background(), subj, filepath.Join(t.TempDir(), "gone.png")); err == nil {
		t.Error("LoadPair() error = nil for missing reference")
	}
}

func TestFromBytes(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
		wantErr  error
	}{
		{"sniffed png", pngHeader, "", "image/png", nil},
		{"sniffed wins", pngHeader, "image/jpeg", "image/png", nil},
		{"declared fallback", []byte("RIFFxxxx????"), "image/heic", "image/heic", nil},
		{"empty", nil, "image/png", "", models.ErrEmptyImage},
		{"text", []byte("hello"), "", "", models.ErrUnsupportedMIME},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := FromBytes(tt.data, "x", tt.declared)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FromBytes() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && img.MIMEType != tt.want {
				t.Errorf("MIMEType = %q, want %q", img.MIMEType, tt.want)
			}
		})
	}
}

func TestSaver_Save(t *testing.T) {
	dir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(oldWd)

	s := NewSaver()
	s.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	a := &models.Artifact{Data: []byte("jpeg bytes"), MIMEType: "image/jpeg"}

	path, err := s.Save(a, "")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != "studio-20250304-050607.jpg" {
		t.Errorf("path = %q, want studio-20250304-050607.jpg", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("saved data = %q, want unmodified bytes", data)
	}

	if _, err := s.Save(a, "out/nested/final.jpeg"); err != nil {
		t.Errorf("Save() nested error = %v", err)
	}
	if _, err := s.Save(a, "final.png"); !errors.Is(err, security.ErrExtension) {
		t.Errorf("Save() error = %v, want %v", err, security.ErrExtension)
	}
	if _, err := s.Save(a, "../escape.jpg"); !errors.Is(err, security.ErrPathTraversal) {
		t.Errorf("Save() error = %v, want %v", err, security.ErrPathTraversal)
	}
	if _, err := s.Save(nil, ""); err == nil {
		t.Error("Save(nil) error = nil")
	}
}

func TestSaver_SaveInDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "renders")
	a := &models.Artifact{Data: []byte("png"), MIMEType: "image/png"}

	path, err := NewSaver().SaveInDir(a, dir, "../sneaky.png")
	if err != nil {
		t.Fatalf("SaveInDir() error = %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("SaveInDir() wrote outside dir: %s", path)
	}
}

func TestGenerateFilenameWithTime(t *testing.T) {
	ts := time.Date(2024, 12, 25, 10, 30, 45, 0, time.UTC)
	if got := GenerateFilenameWithTime("png", ts); got != "studio-20241225-103045.png" {
		t.Errorf("GenerateFilenameWithTime() = %q", got)
	}
}
