package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manash/prodstudio/pkg/models"
)

// Item is one product shot: a subject, an optional reference and its own
// style on top of the batch defaults.
type Item struct {
	Index     int
	Subject   string
	Reference string
	Style     Style
	Output    string
}

type jsonItem struct {
	Subject     string              `json:"subject"`
	Reference   string              `json:"reference,omitempty"`
	Presets     map[string][]string `json:"presets,omitempty"`
	Brief       string              `json:"brief,omitempty"`
	Aspect      string              `json:"aspect,omitempty"`
	Transparent bool                `json:"transparent,omitempty"`
	Auto        bool                `json:"auto,omitempty"`
	Output      string              `json:"output,omitempty"`
}

// ParseFile reads a .txt or .json shoot list. Relative image paths are
// resolved against the file's directory.
func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var items []Item
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		items, err = ParseJSON(file)
	case ".txt", "":
		items, err = ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i := range items {
		items[i].Subject = resolve(dir, items[i].Subject)
		items[i].Reference = resolve(dir, items[i].Reference)
	}
	return items, nil
}

func resolve(dir, src string) string {
	if src == "" || filepath.IsAbs(src) || strings.Contains(src, "://") {
		return src
	}
	return filepath.Join(dir, src)
}

// ParseText reads one shot per line: a subject and an optional reference,
// separated by whitespace. Blank lines and # comments are skipped.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) > 2 {
			return nil, fmt.Errorf("line %d: want subject [reference], got %d fields", line, len(fields))
		}
		item := Item{Index: len(items) + 1, Subject: fields[0]}
		if len(fields) == 2 {
			item.Reference = fields[1]
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no subjects found in file")
	}
	return items, nil
}

func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var jsonItems []jsonItem
	if err := json.Unmarshal(data, &jsonItems); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if len(jsonItems) == 0 {
		return nil, fmt.Errorf("no subjects found in file")
	}

	items := make([]Item, len(jsonItems))
	for i, ji := range jsonItems {
		if strings.TrimSpace(ji.Subject) == "" {
			return nil, fmt.Errorf("item %d has no subject", i+1)
		}
		st, err := ji.style()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items[i] = Item{
			Index:     i + 1,
			Subject:   ji.Subject,
			Reference: ji.Reference,
			Style:     st,
			Output:    ji.Output,
		}
	}
	return items, nil
}

func (ji jsonItem) style() (Style, error) {
	st := Style{
		Brief:       strings.TrimSpace(ji.Brief),
		Transparent: ji.Transparent,
		Auto:        ji.Auto,
	}
	if ji.Aspect != "" {
		a := models.AspectRatio(ji.Aspect)
		if !a.IsValid() {
			return Style{}, fmt.Errorf("%w: %q", models.ErrInvalidAspectRatio, ji.Aspect)
		}
		st.AspectRatio = a
	}
	if len(ji.Presets) > 0 {
		st.Presets = make(map[models.Category][]string, len(ji.Presets))
		for name, ids := range ji.Presets {
			c, err := models.ParseCategory(name)
			if err != nil {
				return Style{}, fmt.Errorf("%w: %q", err, name)
			}
			st.Presets[c] = ids
		}
	}
	return st, nil
}
