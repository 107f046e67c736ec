package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Parse builds a Tree from its map form:
//
//	{"name": {"equalTo": "ada"}, "age": {"greaterThan": 30}}
//	{"OR": [{"name": {"equalTo": "ada"}}, {"name": {"equalTo": "bob"}}]}
//	{"owner": {"name": {"equalTo": "ada"}}}          // Ref on a pointer
//	{"acl.users": {"elemMatch": {"userId": {"in": ["u1"]}}}}
//
// Sibling keys are joined with And. A field whose value holds no operator
// keys is a Ref on that field.
func Parse(m map[string]any) (Tree, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out And
	for _, k := range keys {
		t, err := parseKey(k, m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return AndOf(out...), nil
}

// ParseJSON parses the JSON form of a filter. Numbers are kept as
// json.Number so integer ids and counters compare exactly.
func ParseJSON(data []byte) (Tree, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("filter: decode: %w", err)
	}
	return Parse(m)
}

func parseKey(key string, v any) (Tree, error) {
	switch key {
	case "AND", "OR":
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("filter: %s expects a list, got %T", key, v)
		}
		children := make([]Tree, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("filter: %s[%d] expects an object, got %T", key, i, item)
			}
			t, err := Parse(m)
			if err != nil {
				return nil, err
			}
			children = append(children, t)
		}
		if key == "AND" {
			return And(children), nil
		}
		return Or(children), nil
	}
	cond, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter: field %q expects an object, got %T", key, v)
	}
	if sub, ok := cond["elemMatch"]; ok && len(cond) == 1 {
		m, ok := sub.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter: elemMatch on %q expects an object, got %T", key, sub)
		}
		where, err := Parse(m)
		if err != nil {
			return nil, err
		}
		return ElemMatch{Field: key, Where: where}, nil
	}
	if !hasOperator(cond) {
		where, err := Parse(cond)
		if err != nil {
			return nil, err
		}
		return Ref{Field: key, Where: where}, nil
	}
	names := make([]string, 0, len(cond))
	for op := range cond {
		names = append(names, op)
	}
	sort.Strings(names)
	var leaves And
	for _, name := range names {
		op := Op(name)
		if !op.Valid() {
			return nil, fmt.Errorf("filter: unknown operator %q on %q", name, key)
		}
		l := Leaf{Field: key, Op: op, Value: cond[name]}
		if err := Validate(l); err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return AndOf(leaves...), nil
}

func hasOperator(m map[string]any) bool {
	for k := range m {
		if Op(k).Valid() {
			return true
		}
	}
	return false
}
