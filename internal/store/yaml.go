package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLStore keeps the registry in a YAML file:
//
//	hubs:
//	  - address: 00:07:80:d0:57:32
//	    name: Crane
type YAMLStore struct {
	path string
	mu   sync.Mutex
}

type yamlFile struct {
	Hubs []yamlHub `yaml:"hubs"`
}

type yamlHub struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

func (s *YAMLStore) ReadAll(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}

	names := make(map[string]string, len(f.Hubs))
	for _, h := range f.Hubs {
		if h.Address == "" {
			continue
		}
		names[h.Address] = h.Name
	}
	return names, nil
}

// WriteAll writes to a temporary file in the same directory and renames it
// over the old one, so a crash leaves either the old or the new registry.
func (s *YAMLStore) WriteAll(ctx context.Context, names map[string]string) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	f := yamlFile{Hubs: make([]yamlHub, 0, len(names))}
	for addr, name := range names {
		f.Hubs = append(f.Hubs, yamlHub{Address: addr, Name: name})
	}
	sort.Slice(f.Hubs, func(i, j int) bool { return f.Hubs[i].Address < f.Hubs[j].Address })

	data, err := yaml.Marshal(&f)
	if err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *YAMLStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
