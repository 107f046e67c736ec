package privacy

import (
	"fmt"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
)

// Paths of the stored access list.
const (
	usersPath = veloxdb.FieldACL + ".users"
	rolesPath = veloxdb.FieldACL + ".roles"
)

// UserAccess grants a single user read and/or write access to an object.
type UserAccess struct {
	UserID string `json:"userId"`
	Read   bool   `json:"read"`
	Write  bool   `json:"write"`
}

// RoleAccess grants every user of a role read and/or write access to an object.
type RoleAccess struct {
	RoleID string `json:"roleId"`
	Read   bool   `json:"read"`
	Write  bool   `json:"write"`
}

// ACL is the row-level access list of an object. An object without one is
// readable and writable by everyone.
//
// A user entry takes precedence over the entries of the user's role: a user
// listed with read=false cannot read the object even if the role can.
type ACL struct {
	Users []UserAccess `json:"users"`
	Roles []RoleAccess `json:"roles"`
}

// AllowUser returns a copy of a granting the user the given access.
func (a ACL) AllowUser(id string, read, write bool) ACL {
	a.Users = append(append([]UserAccess(nil), a.Users...), UserAccess{UserID: id, Read: read, Write: write})
	return a
}

// AllowRole returns a copy of a granting the role the given access.
func (a ACL) AllowRole(id string, read, write bool) ACL {
	a.Roles = append(append([]RoleAccess(nil), a.Roles...), RoleAccess{RoleID: id, Read: read, Write: write})
	return a
}

// Map returns the stored form of the access list.
func (a ACL) Map() map[string]any {
	users := make([]any, len(a.Users))
	for i, u := range a.Users {
		users[i] = map[string]any{"userId": u.UserID, "read": u.Read, "write": u.Write}
	}
	roles := make([]any, len(a.Roles))
	for i, r := range a.Roles {
		roles[i] = map[string]any{"roleId": r.RoleID, "read": r.Read, "write": r.Write}
	}
	return map[string]any{"users": users, "roles": roles}
}

// ParseACL reads an access list from its stored form. ACL and *ACL values
// are returned as they are.
func ParseACL(v any) (ACL, error) {
	switch v := v.(type) {
	case ACL:
		return v, nil
	case *ACL:
		if v == nil {
			return ACL{}, nil
		}
		return *v, nil
	case map[string]any:
		var a ACL
		for _, e := range filter.List(v["users"]) {
			m, ok := e.(map[string]any)
			if !ok {
				return ACL{}, fmt.Errorf("privacy: acl user entry: unexpected %T", e)
			}
			id, _ := m["userId"].(string)
			a.Users = append(a.Users, UserAccess{UserID: id, Read: m["read"] == true, Write: m["write"] == true})
		}
		for _, e := range filter.List(v["roles"]) {
			m, ok := e.(map[string]any)
			if !ok {
				return ACL{}, fmt.Errorf("privacy: acl role entry: unexpected %T", e)
			}
			id, _ := m["roleId"].(string)
			a.Roles = append(a.Roles, RoleAccess{RoleID: id, Read: m["read"] == true, Write: m["write"] == true})
		}
		return a, nil
	}
	return ACL{}, fmt.Errorf("privacy: unexpected acl %T", v)
}

// NormalizeACL rewrites an ACL or *ACL held in the acl field of data into
// its stored form. A nil acl is kept, since it clears the access list.
func NormalizeACL(data veloxdb.Object) error {
	v, ok := data[veloxdb.FieldACL]
	if !ok || v == nil {
		return nil
	}
	if _, ok := v.(map[string]any); ok {
		return nil
	}
	a, err := ParseACL(v)
	if err != nil {
		return err
	}
	data[veloxdb.FieldACL] = a.Map()
	return nil
}

// BuildFilterWithACL layers the row-level access clause for op on top of
// base. Root contexts see base unchanged; anonymous ones only see objects
// without an acl. An authenticated user additionally sees objects granting
// op to their user entry, or to their role when no user entry names them.
func BuildFilterWithACL(base filter.Tree, oc *veloxdb.OperationContext, op veloxdb.Operation) filter.Tree {
	if oc != nil && oc.IsRoot {
		return base
	}
	public := filter.Eq(veloxdb.FieldACL, nil)
	uid := oc.UserID()
	if uid == "" {
		return filter.AndOf(base, public)
	}
	clauses := filter.Or{
		public,
		filter.ElemMatch{
			Field: usersPath,
			Where: filter.And{filter.In("userId", uid), filter.In(string(op), true)},
		},
	}
	if rid := oc.RoleID(); rid != "" {
		clauses = append(clauses, filter.And{
			filter.NotIn(usersPath+".userId", uid),
			filter.ElemMatch{
				Field: rolesPath,
				Where: filter.And{filter.In("roleId", rid), filter.In(string(op), true)},
			},
		})
	}
	return filter.AndOf(base, clauses)
}

// Allows reports whether oc may perform op on obj, evaluating the same
// clause BuildFilterWithACL hands to the adapters.
func Allows(obj veloxdb.Object, oc *veloxdb.OperationContext, op veloxdb.Operation) bool {
	return filter.Match(BuildFilterWithACL(nil, oc, op), obj)
}
