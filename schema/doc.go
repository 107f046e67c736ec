// Package schema provides the runtime class schema the controller works
// against: classes, their fields and indexes.
//
// A schema is built once at startup, either in Go or from a YAML file, and
// is shared read-only by every operation afterwards.
//
// # Quick Start
//
//	s, err := schema.New(
//	    schema.NewClass("Company",
//	        schema.String("name").Require(),
//	    ),
//	    schema.NewClass("User",
//	        schema.String("name").Require(),
//	        schema.Int("age").WithDefault(18),
//	        schema.Pointer("company", "Company"),
//	        schema.Relation("friends", "User"),
//	    ).WithTimestamps(),
//	)
//
// # Field Kinds
//
// Every field is one of four kinds:
//
//	Scalar    // String, Int, Float, Boolean, Date, File, Array, Any
//	Object    // inline object described by another class
//	Pointer   // stores a single target object id
//	Relation  // stores a list of target object ids
//
// # Implicit Fields
//
// Every class carries "id", assigned by the store at insert time and
// immutable afterwards, and "acl", the optional row-level access list.
// Neither may be declared explicitly.
//
// # YAML
//
//	classes:
//	  - name: User
//	    timestamps: true
//	    fields:
//	      - {name: name, type: String, required: true}
//	      - {name: company, type: Pointer, class: Company}
//	      - {name: friends, type: Relation, class: User}
//	    indexes:
//	      - {fields: [name], unique: true}
package schema
