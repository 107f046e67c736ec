package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Reserved field names.
const (
	FieldID        = "id"
	FieldACL       = "acl"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Kind is the variant of a field.
type Kind uint8

// Field kinds.
const (
	KindScalar Kind = iota
	KindObject
	KindPointer
	KindRelation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindObject:
		return "Object"
	case KindPointer:
		return "Pointer"
	case KindRelation:
		return "Relation"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Type is the value type of a scalar field.
type Type string

// Scalar types.
const (
	TypeString  Type = "String"
	TypeInt     Type = "Int"
	TypeFloat   Type = "Float"
	TypeBoolean Type = "Boolean"
	TypeDate    Type = "Date"
	TypeFile    Type = "File"
	TypeArray   Type = "Array"
	TypeAny     Type = "Any"
	// TypeACL is the type of the implicit acl field.
	TypeACL Type = "ACL"
)

var scalarTypes = map[Type]struct{}{
	TypeString: {}, TypeInt: {}, TypeFloat: {}, TypeBoolean: {},
	TypeDate: {}, TypeFile: {}, TypeArray: {}, TypeAny: {}, TypeACL: {},
}

// Field describes one field of a class.
type Field struct {
	Name string
	Kind Kind
	// Type is set for scalar fields.
	Type Type
	// Class is the nested class of an Object field, or the target class of
	// a Pointer or Relation field.
	Class       string
	Required    bool
	Default     any
	Description string
}

// String returns a scalar field of type String.
func String(name string) *Field { return scalar(name, TypeString) }

// Int returns a scalar field of type Int.
func Int(name string) *Field { return scalar(name, TypeInt) }

// Float returns a scalar field of type Float.
func Float(name string) *Field { return scalar(name, TypeFloat) }

// Bool returns a scalar field of type Boolean.
func Bool(name string) *Field { return scalar(name, TypeBoolean) }

// Date returns a scalar field of type Date.
func Date(name string) *Field { return scalar(name, TypeDate) }

// File returns a scalar field of type File.
func File(name string) *Field { return scalar(name, TypeFile) }

// Array returns a scalar field holding a list of values.
func Array(name string) *Field { return scalar(name, TypeArray) }

// Any returns a scalar field accepting any value.
func Any(name string) *Field { return scalar(name, TypeAny) }

// Object returns an inline object field described by class.
func Object(name, class string) *Field {
	return &Field{Name: name, Kind: KindObject, Class: class}
}

// Pointer returns a field referencing a single object of class target.
func Pointer(name, target string) *Field {
	return &Field{Name: name, Kind: KindPointer, Class: target}
}

// Relation returns a field referencing many objects of class target.
func Relation(name, target string) *Field {
	return &Field{Name: name, Kind: KindRelation, Class: target}
}

func scalar(name string, t Type) *Field {
	return &Field{Name: name, Kind: KindScalar, Type: t}
}

// Require marks the field as required on create and non-clearable on update.
func (f *Field) Require() *Field {
	f.Required = true
	return f
}

// WithDefault sets the value used when a create omits the field.
func (f *Field) WithDefault(v any) *Field {
	f.Default = v
	return f
}

// Comment sets the field description.
func (f *Field) Comment(d string) *Field {
	f.Description = d
	return f
}

// IsReference reports whether the field is a Pointer or a Relation.
func (f *Field) IsReference() bool {
	return f.Kind == KindPointer || f.Kind == KindRelation
}

// Check reports whether v fits the field's declared shape. Null is always
// accepted; required-ness is checked separately.
func (f *Field) Check(v any) error {
	if v == nil {
		return nil
	}
	switch f.Kind {
	case KindObject:
		if !isMap(v) {
			return fmt.Errorf("expected an object, got %T", v)
		}
		return nil
	case KindPointer:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected an object id, got %T", v)
		}
		return nil
	case KindRelation:
		if !isList(v) {
			return fmt.Errorf("expected a list of object ids, got %T", v)
		}
		for _, e := range listOf(v) {
			if _, ok := e.(string); !ok {
				return fmt.Errorf("expected a list of object ids, got element %T", e)
			}
		}
		return nil
	}
	switch f.Type {
	case TypeString, TypeFile:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
	case TypeInt:
		if !isInteger(v) {
			return fmt.Errorf("expected an integer, got %T", v)
		}
	case TypeFloat:
		if !isNumber(v) {
			return fmt.Errorf("expected a number, got %T", v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected a boolean, got %T", v)
		}
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339Nano, d); err != nil {
				return fmt.Errorf("expected an RFC 3339 date: %w", err)
			}
		default:
			return fmt.Errorf("expected a date, got %T", v)
		}
	case TypeArray:
		if !isList(v) {
			return fmt.Errorf("expected a list, got %T", v)
		}
	case TypeACL:
		if !isMap(v) && reflect.ValueOf(v).Kind() != reflect.Struct && reflect.ValueOf(v).Kind() != reflect.Pointer {
			return fmt.Errorf("expected an access list, got %T", v)
		}
	}
	return nil
}

func isMap(v any) bool {
	return reflect.ValueOf(v).Kind() == reflect.Map
}

func isList(v any) bool {
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func listOf(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func isNumber(v any) bool {
	if n, ok := v.(json.Number); ok {
		_, err := n.Float64()
		return err == nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case json.Number:
		_, err := n.Int64()
		return err == nil
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// Index declares an index on one or more fields.
type Index struct {
	Fields []string
	Unique bool
}

// Class is a named set of fields. It is immutable once added to a Schema.
type Class struct {
	Name    string
	Fields  []*Field
	Indexes []Index

	byName map[string]*Field
}

// NewClass returns a class with the given fields. The implicit acl field is
// added when the class is added to a Schema.
func NewClass(name string, fields ...*Field) *Class {
	return &Class{Name: name, Fields: fields}
}

// WithTimestamps adds createdAt and updatedAt Date fields, maintained by the
// timestamp hooks of contrib/mixin.
func (c *Class) WithTimestamps() *Class {
	c.Fields = append(c.Fields, Date(FieldCreatedAt), Date(FieldUpdatedAt))
	return c
}

// WithIndexes adds indexes to the class.
func (c *Class) WithIndexes(idx ...Index) *Class {
	c.Indexes = append(c.Indexes, idx...)
	return c
}

// Field returns the named field. "id" is not a declared field.
func (c *Class) Field(name string) (*Field, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// HasField reports whether name is the id or a declared field.
func (c *Class) HasField(name string) bool {
	if name == FieldID {
		return true
	}
	_, ok := c.byName[name]
	return ok
}

// FieldNames returns the declared field names in declaration order.
func (c *Class) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// References returns the Pointer and Relation fields of the class.
func (c *Class) References() []*Field {
	var refs []*Field
	for _, f := range c.Fields {
		if f.IsReference() {
			refs = append(refs, f)
		}
	}
	return refs
}

// Schema is the set of classes known to the controller.
type Schema struct {
	classes []*Class
	byName  map[string]*Class
}

// New validates the classes and returns the schema. Class and field names
// must be unique, "id" and "acl" may not be declared, and Object, Pointer
// and Relation fields must name a class of the schema.
func New(classes ...*Class) (*Schema, error) {
	s := &Schema{byName: make(map[string]*Class, len(classes))}
	for _, c := range classes {
		if c == nil || c.Name == "" {
			return nil, fmt.Errorf("schema: class without name")
		}
		if strings.Contains(c.Name, ".") {
			return nil, fmt.Errorf("schema: class %q: name may not contain dots", c.Name)
		}
		if _, ok := s.byName[c.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate class %q", c.Name)
		}
		c.byName = make(map[string]*Field, len(c.Fields)+1)
		for _, f := range c.Fields {
			if err := validateField(c, f); err != nil {
				return nil, err
			}
			c.byName[f.Name] = f
		}
		acl := scalar(FieldACL, TypeACL)
		c.Fields = append(c.Fields, acl)
		c.byName[FieldACL] = acl
		s.byName[c.Name] = c
		s.classes = append(s.classes, c)
	}
	for _, c := range s.classes {
		for _, f := range c.Fields {
			if f.Kind == KindScalar {
				continue
			}
			if _, ok := s.byName[f.Class]; !ok {
				return nil, fmt.Errorf("schema: %s.%s: unknown class %q", c.Name, f.Name, f.Class)
			}
		}
		for _, idx := range c.Indexes {
			for _, name := range idx.Fields {
				if !c.HasField(name) {
					return nil, fmt.Errorf("schema: %s: index on unknown field %q", c.Name, name)
				}
			}
		}
	}
	return s, nil
}

// MustNew is like New but panics on error.
func MustNew(classes ...*Class) *Schema {
	s, err := New(classes...)
	if err != nil {
		panic(err)
	}
	return s
}

func validateField(c *Class, f *Field) error {
	switch {
	case f == nil || f.Name == "":
		return fmt.Errorf("schema: %s: field without name", c.Name)
	case f.Name == FieldID || f.Name == FieldACL:
		return fmt.Errorf("schema: %s: field name %q is reserved", c.Name, f.Name)
	case strings.Contains(f.Name, "."):
		return fmt.Errorf("schema: %s.%s: field name may not contain dots", c.Name, f.Name)
	}
	if _, ok := c.byName[f.Name]; ok {
		return fmt.Errorf("schema: %s: duplicate field %q", c.Name, f.Name)
	}
	if f.Kind == KindScalar {
		if _, ok := scalarTypes[f.Type]; !ok || f.Type == TypeACL {
			return fmt.Errorf("schema: %s.%s: unknown type %q", c.Name, f.Name, f.Type)
		}
	} else if f.Class == "" {
		return fmt.Errorf("schema: %s.%s: %s field needs a class", c.Name, f.Name, f.Kind)
	}
	if f.Default != nil {
		if err := f.Check(f.Default); err != nil {
			return fmt.Errorf("schema: %s.%s: default: %w", c.Name, f.Name, err)
		}
	}
	return nil
}

// Class returns the named class.
func (s *Schema) Class(name string) (*Class, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.byName[name]
	return c, ok
}

// Classes returns every class in declaration order.
func (s *Schema) Classes() []*Class {
	return s.classes
}
