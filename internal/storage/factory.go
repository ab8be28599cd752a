package storage

import (
	"fmt"
	"sort"
)

var factoryFuncs = map[string]func(Options) (SeenStore, error){}

func RegisterFactory(storageType string, fn func(Options) (SeenStore, error)) {
	factoryFuncs[storageType] = fn
}

func New(storageType string, opts Options) (SeenStore, error) {
	if storageType == "" {
		storageType = "json"
	}

	fn, exists := factoryFuncs[storageType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s (registered: %v)", storageType, Registered())
	}

	return fn(opts)
}

func Registered() []string {
	names := make([]string, 0, len(factoryFuncs))
	for name := range factoryFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
