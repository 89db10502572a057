package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/manash/prodstudio/pkg/models"
)

var (
	ErrUnsupportedTerminal = errors.New("terminal does not support inline images")
	ErrNoArtifact          = errors.New("no image to display")
)

// Displayer renders artifacts inline in terminals that speak the kitty protocol.
type Displayer struct {
	out       io.Writer
	supported bool
	columns   int
}

// New detects support on out. force skips detection.
func New(out io.Writer, force bool) *Displayer {
	return &Displayer{out: out, supported: force || IsTerminalSupported(out)}
}

func (d *Displayer) Supported() bool {
	return d.supported
}

// SetColumns limits the rendered width in terminal cells.
func (d *Displayer) SetColumns(n int) {
	d.columns = n
}

func (d *Displayer) Show(a *models.Artifact) error {
	if a == nil || len(a.Data) == 0 {
		return ErrNoArtifact
	}
	if !d.supported {
		return ErrUnsupportedTerminal
	}

	data, err := toPNG(a)
	if err != nil {
		return fmt.Errorf("failed to prepare image: %w", err)
	}

	enc := NewKittyEncoder(d.out)
	enc.Columns = d.columns
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	return nil
}

// toPNG returns PNG bytes, transcoding other formats the stdlib can decode.
func toPNG(a *models.Artifact) ([]byte, error) {
	if strings.EqualFold(a.MIMEType, "image/png") {
		return a.Data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Describe is a one-line summary of an artifact, e.g. "image/png, 1.2 MB".
func Describe(a *models.Artifact) string {
	if a == nil {
		return "no image"
	}
	return fmt.Sprintf("%s, %s", a.MIMEType, humanize.Bytes(uint64(len(a.Data))))
}

// IsTerminalSupported reports whether out is a terminal known to render kitty graphics.
func IsTerminalSupported(out io.Writer) bool {
	if f, ok := out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false
	}

	programs := []string{"kitty", "ghostty", "iterm.app", "wezterm"}
	if slices.Contains(programs, strings.ToLower(os.Getenv("TERM_PROGRAM"))) {
		return true
	}
	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	t := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
