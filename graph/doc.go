// Package graph provides the object graph controller, the entry point of
// every read and write of veloxdb.
//
// The controller sits between callers and a storage adapter. Each operation
// checks the class-level policy, runs the hooks of its class, layers the
// row-level access list of the caller onto the filter, and resolves pointer
// and relation fields across classes.
//
// # Creating a Controller
//
//	sch := schema.MustNew(
//	    schema.NewClass("User", schema.String("name").Require()),
//	    schema.NewClass("Post",
//	        schema.String("title"),
//	        schema.Pointer("author", "User"),
//	        schema.Relation("tags", "Tag"),
//	    ).WithTimestamps(),
//	    schema.NewClass("Tag", schema.String("label")),
//	)
//	ctrl := graph.New(memory.New(), sch,
//	    graph.WithHooks(hooks...),
//	    graph.WithLogger(logger),
//	)
//	if err := ctrl.Connect(ctx); err != nil {
//	    return err
//	}
//
// # Access
//
// The caller is read from the context (veloxdb.FromContext). Root contexts
// bypass every check. Other callers only see and change the objects whose
// acl grants them the operation, either through their user or their role.
// An object that exists but is not visible is reported as not found.
//
// # Pointers and Relations
//
// A requested field path such as "author.name" loads the author of each
// object through the controller itself, with the caller's access, and
// replaces the stored id with the object. Relations are returned as a
// *veloxdb.Connection. Filters may reach into referenced classes the same
// way, with filter.Ref or a dotted leaf.
//
// Mutations accept the link, unlink and createAndLink inputs for pointers,
// and a list of ids or the add, remove and createAndAdd inputs for
// relations.
//
// # Hooks
//
// Mutations run the Before and After hooks of their phase around the
// adapter call; reads run BeforeRead and AfterRead unless SkipHooks is set.
// The default hooks of contrib/mixin are registered first.
package graph
