package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/tillpoint/internal/domain"
	"github.com/gosuda/tillpoint/internal/plan"
)

type planView struct {
	Plan     string         `yaml:"plan"`
	Products int            `yaml:"product_limit"`
	Users    int            `yaml:"user_limit"`
	Roles    map[string]int `yaml:"roles"`
}

func newPlansCmd() *cobra.Command {
	var (
		overrides string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the effective plan limit table",
		Long:  "Plans prints every plan with overrides applied over the built-in defaults. -1 is unlimited.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := plan.Load(overrides)
			if err != nil {
				return err
			}

			views := make([]planView, 0, len(table.Names()))
			for _, name := range table.Names() {
				l, err := table.Limits(name)
				if err != nil {
					return err
				}
				v := planView{Plan: l.Plan, Products: l.Products, Users: l.Users, Roles: make(map[string]int, len(l.Roles))}
				for r, n := range l.Roles {
					v.Roles[string(r)] = n
				}
				views = append(views, v)
			}

			switch output {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				return enc.Encode(views)
			case "table", "":
				return writePlanTable(cmd.OutOrStdout(), views)
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	cmd.Flags().StringVar(&overrides, "overrides", os.Getenv("TILLPOINT_PLAN_OVERRIDES"), "plan override document")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, yaml")
	return cmd
}

func writePlanTable(w io.Writer, views []planView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "PLAN\tPRODUCTS\tUSERS")
	for _, r := range domain.Roles {
		fmt.Fprintf(tw, "\t%s", plan.RoleKey(r))
	}
	fmt.Fprintln(tw)

	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s", v.Plan, limit(v.Products), limit(v.Users))
		for _, r := range domain.Roles {
			fmt.Fprintf(tw, "\t%s", limit(v.Roles[string(r)]))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func limit(n int) string {
	if n == plan.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
