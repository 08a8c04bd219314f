package params

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads a parameter file, choosing the decoder by extension:
// .yaml/.yml, .toml, or the native "key = value" .params format.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".toml":
		return LoadTOML(data)
	default:
		return loadNative(bytes.NewReader(data), filepath.Dir(path), map[string]bool{path: true})
	}
}

func LoadYAML(data []byte) (*Database, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml params: %w", err)
	}
	db := New()
	flatten(db.values, "", raw)
	return db, nil
}

func LoadTOML(data []byte) (*Database, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode toml params: %w", err)
	}
	db := New()
	flatten(db.values, "", raw)
	return db, nil
}

// LoadNative parses "key = value" lines. Lines starting with '#' are
// comments. Keys parent.N name files (relative to dir) whose values are
// loaded first and then overridden by this file.
func LoadNative(r io.Reader, dir string) (*Database, error) {
	return loadNative(r, dir, map[string]bool{})
}

func loadNative(r io.Reader, dir string, visiting map[string]bool) (*Database, error) {
	own := make(map[string]string)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key = value", ErrInvalid, line)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%w: line %d: empty key", ErrInvalid, line)
		}
		own[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	db := New()
	for i := 0; ; i++ {
		parent, ok := own["parent."+strconv.Itoa(i)]
		if !ok {
			break
		}
		path := parent
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, parent)
		}
		if visiting[path] {
			return nil, fmt.Errorf("%w: parent cycle through %s", ErrInvalid, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open parent %s: %w", path, err)
		}
		visiting[path] = true
		parentDB, err := loadNative(f, filepath.Dir(path), visiting)
		_ = f.Close()
		delete(visiting, path)
		if err != nil {
			return nil, err
		}
		db.Merge(parentDB)
	}
	for k, v := range own {
		db.values[k] = v
	}
	return db, nil
}

func flatten(out map[string]string, prefix string, v any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			flatten(out, join(k), child)
		}
	case map[any]any:
		for k, child := range x {
			flatten(out, join(fmt.Sprint(k)), child)
		}
	case []map[string]any:
		for i, child := range x {
			flatten(out, join(strconv.Itoa(i)), child)
		}
	case []any:
		for i, child := range x {
			flatten(out, join(strconv.Itoa(i)), child)
		}
	case nil:
		out[prefix] = ""
	case float64:
		out[prefix] = strconv.FormatFloat(x, 'g', -1, 64)
	default:
		out[prefix] = fmt.Sprint(x)
	}
}
