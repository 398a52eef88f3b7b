package path

import (
	"bytes"
	"io"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

func ReadYaml(fs afero.Fs, path string, out interface{}) error {
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "failed to read file %s", path)
	}

	return ConvertYamlToObject(buf, out)
}

// WriteYaml writes content next to path first and renames it into place, so a crash
// never leaves a half written file behind.
func WriteYaml(fs afero.Fs, path string, content interface{}) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(content); err != nil {
		return errors.Wrap(err, "failed to marshal object to yaml")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to marshal object to yaml")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write YAML file to %s", path)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "failed to write YAML file to %s", path)
	}

	return nil
}

// ConvertYamlToObject decodes the document into out, rejecting keys that do not map to a
// field, and then runs the struct's validation tags.
func ConvertYamlToObject(buf []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	err := dec.Decode(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	validate := validator.New()

	err = validate.Struct(out)
	if err != nil {
		return err
	}

	return nil
}

// FileExists reports whether path is an existing regular file.
func FileExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
