// Package veloxdb holds the shared vocabulary of the veloxdb data layer:
// objects, the per-request OperationContext, the Controller contract and the
// error taxonomy.
//
// The controller itself lives in package graph. It rewrites every filter to
// enforce row-level ACLs (package privacy), resolves pointer and relation
// fields against itself, and runs the hook pipeline (package hook) around
// every mutation before delegating to a storage.Adapter.
//
// # Usage
//
//	sch, err := schema.LoadFile("schema.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctrl := graph.New(memory.New(), sch,
//	    graph.WithHooks(hook.Registration{
//	        ClassName: "User",
//	        Phase:     hook.AfterCreate,
//	        Callback:  sendWelcomeMail,
//	    }),
//	)
//	ctx := veloxdb.UserContext(context.Background(), "u1", "editor")
//	user, err := ctrl.GetObject(ctx, veloxdb.GetObjectParams{
//	    ClassName: "User",
//	    ID:        id,
//	    Fields:    []string{"name", "company.name"},
//	})
//
// # Errors
//
// Every operation reports failures as one of NotFoundError, SchemaError,
// AdapterError, HookError, ValidationError or PrivacyError. A row hidden by
// its ACL yields the same NotFoundError as a missing row.
package veloxdb
