package journal

import (
	"encoding/json"
	"time"
)

// Session groups the renders of one studio run.
type Session struct {
	ID              string
	Name            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CurrentRenderID string
	Model           string
}

// Render is one stored artifact, produced by a generate or an upscale.
type Render struct {
	ID        string
	SessionID string
	ParentID  string
	Operation string // "generate" or "upscale"
	Prompt    string
	Model     string
	MIMEType  string
	ImagePath string
	ByteSize  int64
	Timestamp time.Time
	Metadata  RenderMetadata
}

type RenderMetadata struct {
	AspectRatio string              `json:"aspect_ratio,omitempty"`
	Transparent bool                `json:"transparent,omitempty"`
	Composite   bool                `json:"composite,omitempty"`
	Brief       string              `json:"brief,omitempty"`
	Target      string              `json:"target,omitempty"`
	Presets     map[string][]string `json:"presets,omitempty"`
	Provider    string              `json:"provider,omitempty"`
}

func (m *RenderMetadata) ToJSON() string {
	data, _ := json.Marshal(m)
	return string(data)
}

func ParseRenderMetadata(data string) RenderMetadata {
	var m RenderMetadata
	if data != "" {
		json.Unmarshal([]byte(data), &m)
	}
	return m
}

// OperationStats aggregates renders of one operation.
type OperationStats struct {
	Operation  string
	Count      int
	TotalBytes int64
}
