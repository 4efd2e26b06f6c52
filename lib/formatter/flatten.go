package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// field is one leaf of a json document, nested keys are joined with dots.
type field struct {
	key   string
	value string
}

// flatten encodes v as json and returns its leaves in the order they were
// encoded, which for structs is the order of the fields. Lists of scalars are
// joined with commas, lists of objects are kept as json.
func flatten(v any) ([]field, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()

	var out []field
	err = walk(dec, "", &out)
	if err != nil {
		return nil, fmt.Errorf("flatten %T: %w", v, err)
	}
	return out, nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func walk(dec *json.Decoder, prefix string, out *[]field) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch tok := tok.(type) {
	case json.Delim:
		switch tok {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, ok := keyTok.(string)
				if !ok {
					return fmt.Errorf("unexpected object key %v", keyTok)
				}
				err = walk(dec, join(prefix, key), out)
				if err != nil {
					return err
				}
			}
			_, err = dec.Token()
			return err
		case '[':
			var items []json.RawMessage
			for dec.More() {
				var item json.RawMessage
				err := dec.Decode(&item)
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			_, err = dec.Token()
			if err != nil {
				return err
			}
			*out = append(*out, field{key: prefix, value: listValue(items)})
			return nil
		}
		return fmt.Errorf("unexpected delimiter %v", tok)
	case nil:
		*out = append(*out, field{key: prefix})
	case string:
		*out = append(*out, field{key: prefix, value: tok})
	case json.Number:
		*out = append(*out, field{key: prefix, value: tok.String()})
	case bool:
		*out = append(*out, field{key: prefix, value: fmt.Sprint(tok)})
	default:
		return fmt.Errorf("unexpected token %v", tok)
	}
	return nil
}

func listValue(items []json.RawMessage) string {
	scalars := make([]string, 0, len(items))
	for _, item := range items {
		var s any
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		err := dec.Decode(&s)
		if err != nil && err != io.EOF {
			return string(item)
		}
		switch s := s.(type) {
		case string:
			scalars = append(scalars, s)
		case json.Number:
			scalars = append(scalars, s.String())
		case bool:
			scalars = append(scalars, fmt.Sprint(s))
		default:
			encoded, _ := json.Marshal(items)
			return string(encoded)
		}
	}
	return strings.Join(scalars, ", ")
}
