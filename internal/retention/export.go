package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/internal/history"
	"github.com/angelmondragon/storefront/internal/profile"
	"gopkg.in/yaml.v3"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml; empty means json.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported export format %q", value)
}

// Export is everything the device knows about the customer.
type Export struct {
	ExportedAt time.Time        `json:"exported_at"`
	Profile    *profile.Profile `json:"profile"`
	Orders     []history.Entry  `json:"orders"`
	Statistics history.Stats    `json:"statistics"`
	Metadata   *Metadata        `json:"metadata,omitempty"`
}

// ExportAll gathers the profile, order history, statistics and retention
// metadata into one document.
func (s *Service) ExportAll(ctx context.Context) Export {
	out := Export{
		ExportedAt: s.now(),
		Orders:     s.orders.All(),
		Statistics: s.orders.Statistics(),
	}
	if p, ok := s.profiles.Load(ctx); ok {
		out.Profile = p
	}
	if meta, ok := s.metadata(ctx); ok {
		out.Metadata = &meta
	}
	return out
}

// ExportFilename is the suggested download name for an export taken now.
func (s *Service) ExportFilename(format Format) string {
	ext := "json"
	if format == FormatYAML {
		ext = "yaml"
	}
	return fmt.Sprintf("storefront-export-%s.%s", s.now().Format("2006-01-02"), ext)
}

// DownloadExport writes ExportAll to w in the requested format.
func (s *Service) DownloadExport(ctx context.Context, w io.Writer, format Format) error {
	export := s.ExportAll(ctx)
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(export); err != nil {
			return fmt.Errorf("encode json export: %w", err)
		}
		return nil
	case FormatYAML:
		return writeYAML(w, export)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// writeYAML goes through JSON first so the YAML document uses the same field
// names and value encodings as the JSON export.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toYAMLValue(generic)); err != nil {
		return fmt.Errorf("encode yaml export: %w", err)
	}
	return enc.Close()
}

func toYAMLValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, val := range typed {
			typed[k] = toYAMLValue(val)
		}
		return typed
	case []any:
		for i, val := range typed {
			typed[i] = toYAMLValue(val)
		}
		return typed
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	}
	return v
}
