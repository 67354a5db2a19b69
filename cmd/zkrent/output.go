package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// writeJSON prints v indented to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err := fmt.Fprintln(w, string(payload))
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
