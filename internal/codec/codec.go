// Package codec renders a diagnostic report in one of the output formats.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-tangra/go-tangra-condiag/internal/collector"
)

// Format names an output encoding.
type Format string

const (
	JSON       Format = "json"
	YAML       Format = "yaml"
	Prometheus Format = "prometheus"
)

// Formats lists the supported formats.
var Formats = []Format{JSON, YAML, Prometheus}

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Encode writes report to w in format f.
func Encode(w io.Writer, report *collector.Report, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case Prometheus:
		return encodePrometheus(w, report)
	}
	return fmt.Errorf("unknown output format %q", f)
}
