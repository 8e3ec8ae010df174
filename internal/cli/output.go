package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// write prints v as indented JSON, or text in text mode.
func write(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
