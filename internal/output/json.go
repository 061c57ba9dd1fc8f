package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteJSON serializes a result as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// WriteRaw prints the external tool's untouched output.
func WriteRaw(w io.Writer, raw string) error {
	if strings.TrimSpace(raw) == "" {
		_, err := fmt.Fprintln(w, "(no output captured)")
		return err
	}
	if !strings.HasSuffix(raw, "\n") {
		raw += "\n"
	}
	_, err := io.WriteString(w, raw)
	return err
}
