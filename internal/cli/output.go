package cli

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

// watchMode is set by commands that stream output until interrupted.
var watchMode bool

// IsJSONOutput reports whether --json was requested.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was requested.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// WriteOutput writes v as indented JSON, or as JSON lines when --jsonl is
// set. In JSONL mode slices are written one element per line.
func WriteOutput(out io.Writer, v any) error {
	if !IsJSONLOutput() {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := json.NewEncoder(out)
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Slice {
		for i := 0; i < value.Len(); i++ {
			if err := enc.Encode(value.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return enc.Encode(v)
}

// MustBeJSONLForWatch rejects streaming output in any format but JSONL.
func MustBeJSONLForWatch() error {
	if watchMode && !IsJSONLOutput() {
		return errors.New("--follow requires --jsonl output")
	}
	return nil
}
