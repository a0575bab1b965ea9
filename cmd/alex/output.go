package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"gopkg.in/yaml.v3"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// recordWriter prints records as YAML documents or indented JSON.
type recordWriter struct {
	out    io.Writer
	format string
}

func newRecordWriter(out io.Writer, format string) (*recordWriter, error) {
	switch format {
	case formatYAML, formatJSON:
		return &recordWriter{out: out, format: format}, nil
	}
	return nil, fmt.Errorf("unknown output type %q (want yaml or json)", format)
}

func (w *recordWriter) one(rec openalex.Record) error {
	if w.format == formatJSON {
		return w.writeJSON(rec)
	}
	return w.writeYAML(rec)
}

// many prints a list. YAML gets one document per record.
func (w *recordWriter) many(records []openalex.Record) error {
	if w.format == formatJSON {
		if records == nil {
			records = []openalex.Record{}
		}
		return w.writeJSON(records)
	}
	for _, rec := range records {
		if err := w.stream(rec); err != nil {
			return err
		}
	}
	return nil
}

// stream prints a single record of a YAML document stream.
func (w *recordWriter) stream(rec openalex.Record) error {
	if _, err := fmt.Fprintln(w.out, "---"); err != nil {
		return err
	}
	return w.writeYAML(rec)
}

func (w *recordWriter) writeYAML(v any) error {
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func (w *recordWriter) writeJSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
