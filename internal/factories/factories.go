// Package factories provides the built-in resource types.
package factories

import (
	"fmt"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/value"
)

// Builtins returns one instance of every built-in factory
func Builtins() []compiler.Factory {
	return []compiler.Factory{
		DictFactory{},
		FileFactory{},
		TextFactory{},
		AtlasFactory{},
	}
}

// Register adds the built-in factories to reg
func Register(reg *compiler.FactoryRegistry) error {
	for _, f := range Builtins() {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in factories
func NewRegistry() *compiler.FactoryRegistry {
	reg := compiler.NewFactoryRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

func stringField(d *value.Dict, key string) (string, bool) {
	v, ok := d.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := value.ConvertTo[value.String](v)
	return string(s), ok
}

func requireString(d *value.Dict, key string) (string, error) {
	s, ok := stringField(d, key)
	if !ok || s == "" {
		return "", fmt.Errorf("missing %q", key)
	}
	return s, nil
}

func wrongObject(want string, obj compiler.Object) error {
	return fmt.Errorf("expected %s, got %T", want, obj)
}
