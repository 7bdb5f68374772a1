package sink

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Serializer renders one message for the log file.
type Serializer interface {
	Serialize(v wire.Value) (string, error)
}

// SerializerFunc adapts a function to Serializer.
type SerializerFunc func(v wire.Value) (string, error)

// Serialize calls f.
func (f SerializerFunc) Serialize(v wire.Value) (string, error) { return f(v) }

// YAMLIndent is the indentation used for nested records and lists.
const YAMLIndent = 2

// YAMLSerializer renders messages as YAML documents.
type YAMLSerializer struct{}

// Serialize implements Serializer. The trailing newline is trimmed.
func (YAMLSerializer) Serialize(v wire.Value) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(YAMLIndent)
	if err := enc.Encode(v.Native()); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// TextSerializer renders messages the way the console does.
var TextSerializer Serializer = SerializerFunc(func(v wire.Value) (string, error) {
	return v.Text(), nil
})
