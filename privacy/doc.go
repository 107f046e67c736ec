// Package privacy holds the two access layers of the controller.
//
// # Row-level access
//
// Every object may carry an access list in its acl field. BuildFilterWithACL
// turns the caller's OperationContext into a filter clause the storage
// adapter evaluates together with the query, so objects the caller may not
// see are never loaded:
//
//	where := privacy.BuildFilterWithACL(base, veloxdb.FromContext(ctx), veloxdb.OpRead)
//
// Objects without an access list are public. A user entry decides for its
// user; role entries only apply to users without an entry of their own.
//
//	acl := privacy.ACL{}.AllowUser("u1", true, true).AllowRole("editor", true, false)
//	data := veloxdb.Object{"title": "draft", "acl": acl.Map()}
//
// # Class-level access
//
// A ClassPolicy decides whether a request may touch a class at all. Classes
// maps class names to policies built from rules:
//
//	policy := privacy.Classes{
//	    "Invoice": {
//	        privacy.DenyIfNoUser(),
//	        privacy.HasRole("accounting"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	    "": {privacy.ReadOnly()},
//	}
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: Grants access and stops evaluation
//   - Deny: Denies access and stops evaluation
//   - Skip: Continues to the next rule
//
// A request no rule decides on is allowed. Denials surface as
// *veloxdb.PrivacyError. Root contexts bypass both layers.
package privacy
