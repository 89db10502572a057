package display

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data using the kitty graphics protocol.
type KittyEncoder struct {
	out io.Writer

	// Columns scales the image to this many terminal cells wide. Zero keeps the native size.
	Columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) header() string {
	h := "a=T,f=100,q=2"
	if e.Columns > 0 {
		h += fmt.Sprintf(",c=%d", e.Columns)
	}
	return h
}

// Encode transmits png. Payloads above one chunk use the m=1/m=0 continuation keys.
func (e *KittyEncoder) Encode(png []byte) error {
	if len(png) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(png)
	if len(encoded) <= chunkSize {
		return e.write(e.header(), encoded)
	}

	for off := 0; off < len(encoded); off += chunkSize {
		end := min(off+chunkSize, len(encoded))
		more := "m=1"
		if end == len(encoded) {
			more = "m=0"
		}

		params := more
		if off == 0 {
			params = e.header() + "," + more
		}
		if err := e.write(params, encoded[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (e *KittyEncoder) write(params, payload string) error {
	var b strings.Builder
	b.Grow(len(escapeStart) + len(params) + 1 + len(payload) + len(escapeEnd))
	b.WriteString(escapeStart)
	b.WriteString(params)
	b.WriteByte(';')
	b.WriteString(payload)
	b.WriteString(escapeEnd)
	_, err := io.WriteString(e.out, b.String())
	return err
}
