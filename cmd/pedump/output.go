package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// encode writes v as JSON or YAML, depending on --format.
func (g *GlobalFlags) encode(w io.Writer, v interface{}) error {
	if g.Format == formatYAML {
		out, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to encode YAML")
		}
		_, err = w.Write(out)
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if g.Pretty {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(jsonValue(v)); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// jsonValue converts the ordered YAML mappings of the dump into values
// encoding/json renders as objects, keeping the mapping order.
func jsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case yaml.MapSlice:
		obj := make(orderedObject, len(t))
		for i, item := range t {
			obj[i] = yaml.MapItem{Key: fmt.Sprint(item.Key), Value: jsonValue(item.Value)}
		}
		return obj
	case []yaml.MapSlice:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	}
	return v
}

// orderedObject is a JSON object whose keys are written in slice order.
type orderedObject []yaml.MapItem

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalJSON(item.Key)
		if err != nil {
			return nil, err
		}
		value, err := marshalJSON(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalJSON encodes v without HTML escaping or a trailing newline.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func printTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorders(tablewriter.Border{Left: false, Top: false, Right: false, Bottom: false})
	table.AppendBulk(rows)
	table.Render()
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
