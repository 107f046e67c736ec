package veloxdb

import "maps"

// FieldID is the name of the store-assigned identifier carried by every object.
const FieldID = "id"

// FieldACL is the name of the optional row-level access list carried by every object.
const FieldACL = "acl"

// Object is a stored object or a pending write: field name to value. Pointer
// fields hold a target id and relation fields a list of target ids at rest;
// resolved results carry nested Objects and Connections in their place.
type Object map[string]any

// ID returns the object's identifier, or "" if it has none.
func (o Object) ID() string {
	id, _ := o[FieldID].(string)
	return id
}

// Clone returns a deep copy of o. Nested maps, slices, objects and
// connections are copied; scalar values are shared.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case Object:
		return v.Clone()
	case map[string]any:
		return map[string]any(Object(v).Clone())
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case []Object:
		out := make([]Object, len(v))
		for i := range v {
			out[i] = v[i].Clone()
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i := range v {
			out[i] = maps.Clone(v[i])
		}
		return out
	case *Connection:
		if v == nil {
			return v
		}
		c := &Connection{Edges: make([]Edge, len(v.Edges))}
		for i, e := range v.Edges {
			c.Edges[i] = Edge{Node: e.Node.Clone()}
		}
		return c
	default:
		return v
	}
}

// Project returns a copy of o restricted to the given top-level fields. The
// id is always kept. A nil or empty field list keeps every field.
func (o Object) Project(fields []string) Object {
	if len(fields) == 0 {
		return o.Clone()
	}
	out := make(Object, len(fields)+1)
	if id, ok := o[FieldID]; ok {
		out[FieldID] = id
	}
	for _, f := range fields {
		if v, ok := o[f]; ok {
			out[f] = cloneValue(v)
		}
	}
	return out
}

// Connection is the resolved form of a relation field.
type Connection struct {
	Edges []Edge `json:"edges"`
}

// Edge is a single node of a Connection.
type Edge struct {
	Node Object `json:"node"`
}

// Nodes returns the nodes of the connection in edge order.
func (c *Connection) Nodes() []Object {
	if c == nil {
		return nil
	}
	nodes := make([]Object, len(c.Edges))
	for i, e := range c.Edges {
		nodes[i] = e.Node
	}
	return nodes
}

// NewConnection wraps nodes as a Connection.
func NewConnection(nodes []Object) *Connection {
	c := &Connection{Edges: make([]Edge, 0, len(nodes))}
	for _, n := range nodes {
		c.Edges = append(c.Edges, Edge{Node: n})
	}
	return c
}

// Order is a single sort key.
type Order struct {
	Field string
	Desc  bool
}

// Asc returns an ascending Order on field.
func Asc(field string) Order { return Order{Field: field} }

// Desc returns a descending Order on field.
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// IDs extracts the identifiers of objs, skipping objects without one.
func IDs(objs []Object) []string {
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		if id := o.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
