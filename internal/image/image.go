package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manash/prodstudio/internal/security"
	"github.com/manash/prodstudio/pkg/models"
)

// MaxImageBytes caps uploads and remote fetches.
const MaxImageBytes = 20 << 20

var ErrTooLarge = errors.New("image exceeds size limit")

// Loader reads subject and reference images from disk or HTTPS URLs.
type Loader struct {
	httpClient *http.Client
	validator  *security.URLValidator
	maxBytes   int64
}

func NewLoader() *Loader {
	return &Loader{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		validator:  security.NewURLValidator(),
		maxBytes:   MaxImageBytes,
	}
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "http://")
}

// Load reads src, a file path or URL, and sniffs its mime type.
func (l *Loader) Load(ctx context.Context, src string) (*models.Image, error) {
	var (
		data []byte
		err  error
		name string
	)
	if isURL(src) {
		data, err = l.download(ctx, src)
		name = filepath.Base(strings.SplitN(src, "?", 2)[0])
	} else {
		data, err = l.readFile(src)
		name = filepath.Base(src)
	}
	if err != nil {
		return nil, err
	}
	return FromBytes(data, security.SanitizeFilename(name), "")
}

// LoadPair loads the subject and, when refSrc is set, the reference concurrently.
func (l *Loader) LoadPair(ctx context.Context, subjectSrc, refSrc string) (*models.Image, *models.Image, error) {
	var subject, reference *models.Image
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		img, err := l.Load(ctx, subjectSrc)
		if err != nil {
			return fmt.Errorf("subject: %w", err)
		}
		subject = img
		return nil
	})
	if refSrc != "" {
		g.Go(func() error {
			img, err := l.Load(ctx, refSrc)
			if err != nil {
				return fmt.Errorf("reference: %w", err)
			}
			reference = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return subject, reference, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return readLimited(f, l.maxBytes)
}

func (l *Loader) download(ctx context.Context, rawURL string) ([]byte, error) {
	if err := l.validator.Validate(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return readLimited(resp.Body, l.maxBytes)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// FromBytes builds an image descriptor. The sniffed type wins over the declared one.
func FromBytes(data []byte, name, declared string) (*models.Image, error) {
	if len(data) == 0 {
		return nil, models.ErrEmptyImage
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = declared
	}
	return models.NewImage(data, mime, name)
}

// Saver writes artifacts to disk byte for byte.
type Saver struct {
	now func() time.Time
}

func NewSaver() *Saver {
	return &Saver{now: time.Now}
}

// Save writes the artifact to a user supplied relative path, or to a
// timestamped file in the working directory when path is empty.
func (s *Saver) Save(a *models.Artifact, path string) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", fmt.Errorf("no image data available")
	}
	if path == "" {
		path = GenerateFilenameWithTime(a.Extension(), s.now())
	}
	if err := security.ValidateArtifactPath(path, a.MIMEType); err != nil {
		return "", err
	}
	if err := writeFile(path, a.Data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveInDir writes into a trusted directory under a sanitized name.
func (s *Saver) SaveInDir(a *models.Artifact, dir, name string) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", fmt.Errorf("no image data available")
	}
	path := filepath.Join(dir, security.SanitizeFilename(name))
	if err := writeFile(path, a.Data); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func GenerateFilename(ext string) string {
	return GenerateFilenameWithTime(ext, time.Now())
}

func GenerateFilenameWithTime(ext string, t time.Time) string {
	return fmt.Sprintf("studio-%s.%s", t.Format("20060102-150405"), ext)
}
