package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
)

// queryFlags are the flags shared by the commands selecting objects.
type queryFlags struct {
	where  string
	fields []string
	order  []string
	first  int
	offset int
}

func (q *queryFlags) register(cmd *cobra.Command, page bool) {
	cmd.Flags().StringVarP(&q.where, "where", "w", "", `Filter in JSON form, e.g. {"name": {"equalTo": "ann"}}`)
	cmd.Flags().StringSliceVarP(&q.fields, "fields", "f", nil, "Fields to return, dotted paths resolve pointers and relations")
	if page {
		cmd.Flags().StringSliceVar(&q.order, "order", nil, "Sort fields, prefixed with - for descending order")
		cmd.Flags().IntVar(&q.first, "first", 0, "Maximum number of objects, 0 for all")
		cmd.Flags().IntVar(&q.offset, "offset", 0, "Number of objects to skip")
	}
}

func (q *queryFlags) filter() (filter.Tree, error) {
	where, err := filter.ParseJSON([]byte(q.where))
	if err != nil {
		return nil, fmt.Errorf("--where: %w", err)
	}
	return where, nil
}

func (q *queryFlags) sort() []veloxdb.Order {
	order := make([]veloxdb.Order, 0, len(q.order))
	for _, f := range q.order {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			order = append(order, veloxdb.Desc(name))
		} else {
			order = append(order, veloxdb.Asc(f))
		}
	}
	return order
}

func newGetCmd(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "get CLASS ID",
		Short: "Print an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := q.filter()
			if err != nil {
				return err
			}
			obj, err := a.ctrl.GetObject(a.context(cmd.Context()), veloxdb.GetObjectParams{
				ClassName: args[0],
				ID:        args[1],
				Where:     where,
				Fields:    q.fields,
			})
			if err != nil {
				return err
			}
			return a.print(obj)
		},
	}
	q.register(cmd, false)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "list CLASS",
		Short: "Print the objects matching a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := q.filter()
			if err != nil {
				return err
			}
			objs, err := a.ctrl.GetObjects(a.context(cmd.Context()), veloxdb.GetObjectsParams{
				ClassName: args[0],
				Where:     where,
				Order:     q.sort(),
				Fields:    q.fields,
				Offset:    q.offset,
				First:     q.first,
			})
			if err != nil {
				return err
			}
			return a.print(objs)
		},
	}
	q.register(cmd, true)
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "count CLASS",
		Short: "Print the number of objects matching a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := q.filter()
			if err != nil {
				return err
			}
			n, err := a.ctrl.Count(a.context(cmd.Context()), veloxdb.CountParams{ClassName: args[0], Where: where})
			if err != nil {
				return err
			}
			return a.print(n)
		},
	}
	cmd.Flags().StringVarP(&q.where, "where", "w", "", "Filter in JSON form")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "create CLASS JSON",
		Short: "Create an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseObject(args[1])
			if err != nil {
				return err
			}
			obj, err := a.ctrl.CreateObject(a.context(cmd.Context()), veloxdb.CreateObjectParams{
				ClassName: args[0],
				Data:      data,
				Fields:    withDefault(fields),
			})
			if err != nil {
				return err
			}
			return a.print(obj)
		},
	}
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Fields to return, default id")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "update CLASS ID JSON",
		Short: "Update an object; null values remove fields",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseObject(args[2])
			if err != nil {
				return err
			}
			obj, err := a.ctrl.UpdateObject(a.context(cmd.Context()), veloxdb.UpdateObjectParams{
				ClassName: args[0],
				ID:        args[1],
				Data:      data,
				Fields:    withDefault(fields),
			})
			if err != nil {
				return err
			}
			return a.print(obj)
		},
	}
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Fields to return, default id")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "delete CLASS ID",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.ctrl.DeleteObject(a.context(cmd.Context()), veloxdb.DeleteObjectParams{
				ClassName: args[0],
				ID:        args[1],
				Fields:    withDefault(fields),
			})
			if err != nil {
				return err
			}
			return a.print(obj)
		},
	}
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Fields of the deleted object to return, default id")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the storage of every class of the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Connect already created the classes.
			for _, c := range a.ctrl.Schema().Classes() {
				fmt.Fprintln(a.out, c.Name)
			}
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every object of every class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.root {
				return fmt.Errorf("clear needs --root")
			}
			return a.ctrl.ClearDatabase(cmd.Context())
		},
	}
}

// print writes v as indented JSON.
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseObject(s string) (veloxdb.Object, error) {
	var data veloxdb.Object
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}
	return data, nil
}

func withDefault(fields []string) []string {
	if len(fields) == 0 {
		return []string{veloxdb.FieldID}
	}
	return fields
}
