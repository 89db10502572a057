package models

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
)

var (
	ErrEmptyImage         = errors.New("image data is empty")
	ErrUnsupportedMIME    = errors.New("unsupported image mime type")
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")
	ErrInvalidTarget      = errors.New("invalid upscale target")
	ErrUnknownCategory    = errors.New("unknown preset category")
)

// NoneID marks a "no preset" entry. It never contributes prompt text.
const NoneID = "none"

type Category string

const (
	CategoryCamera         Category = "camera"
	CategoryLighting       Category = "lighting"
	CategoryMockup         Category = "mockup"
	CategoryManipulation   Category = "manipulation"
	CategoryProductRetouch Category = "retouch"
	CategoryPeopleRetouch  Category = "peopleRetouch"
)

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{
		CategoryCamera,
		CategoryLighting,
		CategoryMockup,
		CategoryManipulation,
		CategoryProductRetouch,
		CategoryPeopleRetouch,
	}
}

func (c Category) IsValid() bool {
	return slices.Contains(Categories(), c)
}

func (c Category) String() string {
	return string(c)
}

// Label is the human readable category name.
func (c Category) Label() string {
	switch c {
	case CategoryProductRetouch:
		return "product retouch"
	case CategoryPeopleRetouch:
		return "people retouch"
	default:
		return string(c)
	}
}

// ParseCategory accepts wire names case-insensitively plus a few dashed aliases.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "product-retouch", "productretouch", "product_retouch":
		return CategoryProductRetouch, nil
	case "people-retouch", "peopleretouch", "people_retouch", "people":
		return CategoryPeopleRetouch, nil
	}
	for _, c := range Categories() {
		if strings.ToLower(string(c)) == key {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

func (p Preset) IsNone() bool {
	return p.ID == NoneID
}

type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectStory     AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
	AspectPhoto     AspectRatio = "4:3"
	AspectPortrait  AspectRatio = "3:4"
	AspectSocial    AspectRatio = "4:5"
	AspectClassic   AspectRatio = "3:2"
)

const DefaultAspectRatio = AspectSquare

func ValidAspectRatios() []AspectRatio {
	return []AspectRatio{
		AspectSquare,
		AspectStory,
		AspectLandscape,
		AspectPhoto,
		AspectPortrait,
		AspectSocial,
		AspectClassic,
	}
}

func (a AspectRatio) IsValid() bool {
	return slices.Contains(ValidAspectRatios(), a)
}

func (a AspectRatio) String() string {
	return string(a)
}

func (a AspectRatio) Label() string {
	switch a {
	case AspectSquare:
		return "Square"
	case AspectStory:
		return "Story / Mobile"
	case AspectLandscape:
		return "Landscape (HD)"
	case AspectPhoto:
		return "Photo"
	case AspectPortrait:
		return "Portrait"
	case AspectSocial:
		return "Social Portrait"
	case AspectClassic:
		return "Classic"
	default:
		return string(a)
	}
}

type ExportSettings struct {
	AspectRatio AspectRatio `json:"aspectRatio"`
	Transparent bool        `json:"transparent"`
}

func DefaultExportSettings() ExportSettings {
	return ExportSettings{AspectRatio: DefaultAspectRatio}
}

func (e ExportSettings) Validate() error {
	if !e.AspectRatio.IsValid() {
		return ErrInvalidAspectRatio
	}
	return nil
}

// Image is an uploaded image. Treat it as immutable; replace it instead of editing Data.
type Image struct {
	Data     []byte
	MIMEType string
	Name     string
}

func NewImage(data []byte, mimeType, name string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrUnsupportedMIME
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Image{Data: buf, MIMEType: mimeType, Name: name}, nil
}

func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Digest is a short content hash, stable for identical bytes.
func (i *Image) Digest() string {
	sum := sha256.Sum256(i.Data)
	return hex.EncodeToString(sum[:6])
}

// Artifact is the latest generated image.
type Artifact struct {
	Data     []byte
	MIMEType string
}

func (a *Artifact) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	buf := make([]byte, len(a.Data))
	copy(buf, a.Data)
	return &Artifact{Data: buf, MIMEType: a.MIMEType}
}

// Extension maps the artifact mime type to a file extension without the dot.
func (a *Artifact) Extension() string {
	return ExtensionForMIME(a.MIMEType)
}

func ExtensionForMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

type UpscaleTarget string

const (
	UpscaleHD UpscaleTarget = "hd"
	Upscale4K UpscaleTarget = "4k"
)

func ValidUpscaleTargets() []UpscaleTarget {
	return []UpscaleTarget{UpscaleHD, Upscale4K}
}

func (t UpscaleTarget) IsValid() bool {
	return slices.Contains(ValidUpscaleTargets(), t)
}

func (t UpscaleTarget) String() string {
	return string(t)
}

// LongEdge is the approximate long edge in pixels the tier asks for.
func (t UpscaleTarget) LongEdge() int {
	switch t {
	case UpscaleHD:
		return 2048
	case Upscale4K:
		return 4096
	default:
		return 0
	}
}

func ParseUpscaleTarget(s string) (UpscaleTarget, error) {
	t := UpscaleTarget(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidTarget
	}
	return t, nil
}

// SuggestionResult maps a category to the preset ids the analyzer picked.
type SuggestionResult map[Category][]string

func (r SuggestionResult) IDs(c Category) []string {
	if r == nil {
		return nil
	}
	return r[c]
}

func (r SuggestionResult) Has(c Category, id string) bool {
	return slices.Contains(r.IDs(c), id)
}

type Brief struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// GenerationParams is the snapshot handed to the prompt composer for one request.
type GenerationParams struct {
	Subject    *Image
	Reference  *Image
	Selections map[Category][]Preset
	Mockup     *Preset
	Export     ExportSettings
	Brief      string
	Composite  bool
}
