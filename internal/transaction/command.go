package transaction

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/muurk/appliancectl/internal/restapi"
)

// Command is one REST call staged inside a transaction.
type Command struct {
	Method restapi.Method `yaml:"method" json:"method"`
	Path   string         `yaml:"path" json:"path"`
	Body   any            `yaml:"body,omitempty" json:"body,omitempty"`
}

// Validate checks the method and path.
func (c Command) Validate() error {
	if !c.Method.Valid() {
		return fmt.Errorf("method must be list, create, modify or delete, got %q", c.Method)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with /, got %q", c.Path)
	}
	return nil
}

// commandFile is the YAML document read by LoadCommands.
type commandFile struct {
	Commands []Command `yaml:"commands"`
}

// LoadCommands reads a YAML command list:
//
//	commands:
//	  - method: create
//	    path: /tm/ltm/pool
//	    body:
//	      name: web
func LoadCommands(r io.Reader) ([]Command, error) {
	var file commandFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("command file is empty")
		}
		return nil, fmt.Errorf("failed to parse command file: %w", err)
	}
	for i := range file.Commands {
		file.Commands[i].Body = normalize(file.Commands[i].Body)
		if err := file.Commands[i].Validate(); err != nil {
			return nil, &ValidationError{Index: i, Message: err.Error()}
		}
	}
	return file.Commands, nil
}

// normalize converts YAML-decoded maps with interface keys into
// string-keyed maps encoding/json accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
