package formatter

import (
	"context"
	"encoding/json"
	"io"
)

type jsonFormatter struct{}

// Write outputs a single json array so that the output can be piped to jq.
func (jsonFormatter) Write(ctx context.Context, w io.Writer, records []Record, opts Options) error {
	values := make([]any, len(records))
	for i, r := range records {
		values[i] = r.Value
	}
	if opts.Details && len(values) == 1 {
		return encode(w, values[0])
	}
	return encode(w, values)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
