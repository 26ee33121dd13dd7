package appliance

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

const sysConfigPath = "/tm/sys/config"

// LoadOption is one option of a config load, sent as {Name: Value}.
type LoadOption struct {
	Name  string
	Value any
}

// MarshalJSON renders the option as a single-key object.
func (o LoadOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{o.Name: o.Value})
}

type sysConfigCommand struct {
	Command string       `json:"command"`
	Name    string       `json:"name,omitempty"`
	Options []LoadOption `json:"options,omitempty"`
}

// Load loads the saved configuration. An empty file loads the default
// configuration; options follow the file option in the given order.
func (a *Appliance) Load(ctx context.Context, file string, options []LoadOption) error {
	if err := a.AwaitReady(ctx); err != nil {
		return err
	}

	cmd := sysConfigCommand{Command: "load", Name: "default"}
	if file != "" {
		cmd.Options = append(cmd.Options, LoadOption{Name: "file", Value: file})
	}
	cmd.Options = append(cmd.Options, options...)

	if _, err := a.exec.Create(ctx, sysConfigPath, cmd); err != nil {
		return err
	}
	a.logger.Info("Configuration loaded", zap.String("file", file))
	return nil
}

// Save saves the running configuration, to file when it is not empty.
func (a *Appliance) Save(ctx context.Context, file string) error {
	if err := a.AwaitReady(ctx); err != nil {
		return err
	}

	cmd := sysConfigCommand{Command: "save"}
	if file != "" {
		cmd.Options = []LoadOption{{Name: "file", Value: file}}
	}

	if _, err := a.exec.Create(ctx, sysConfigPath, cmd); err != nil {
		return err
	}
	a.logger.Info("Configuration saved", zap.String("file", file))
	return nil
}
