package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	fileSchema struct {
		Classes []fileClass `yaml:"classes"`
	}
	fileClass struct {
		Name       string      `yaml:"name"`
		Timestamps bool        `yaml:"timestamps"`
		Fields     []fileField `yaml:"fields"`
		Indexes    []fileIndex `yaml:"indexes"`
	}
	fileField struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Class       string `yaml:"class"`
		Required    bool   `yaml:"required"`
		Default     any    `yaml:"default"`
		Description string `yaml:"description"`
	}
	fileIndex struct {
		Fields []string `yaml:"fields"`
		Unique bool     `yaml:"unique"`
	}
)

// Load reads a YAML schema document from r.
func Load(r io.Reader) (*Schema, error) {
	var fs fileSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fs); err != nil {
		if err == io.EOF {
			return New()
		}
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	classes := make([]*Class, 0, len(fs.Classes))
	for _, fc := range fs.Classes {
		c := NewClass(fc.Name)
		for _, ff := range fc.Fields {
			f, err := ff.field()
			if err != nil {
				return nil, fmt.Errorf("schema: %s: %w", fc.Name, err)
			}
			c.Fields = append(c.Fields, f)
		}
		if fc.Timestamps {
			c.WithTimestamps()
		}
		for _, fi := range fc.Indexes {
			c.WithIndexes(Index{Fields: fi.Fields, Unique: fi.Unique})
		}
		classes = append(classes, c)
	}
	return New(classes...)
}

// LoadFile reads a YAML schema document from path.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (ff fileField) field() (*Field, error) {
	var f *Field
	switch ff.Type {
	case "Object":
		f = Object(ff.Name, ff.Class)
	case "Pointer":
		f = Pointer(ff.Name, ff.Class)
	case "Relation":
		f = Relation(ff.Name, ff.Class)
	case "":
		return nil, fmt.Errorf("field %q: missing type", ff.Name)
	default:
		f = scalar(ff.Name, Type(ff.Type))
	}
	f.Required = ff.Required
	f.Default = ff.Default
	f.Description = ff.Description
	return f, nil
}
