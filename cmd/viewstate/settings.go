package main

import (
	"github.com/goliatone/go-viewstate/pkg/settings"
	"github.com/spf13/cobra"
)

func (a *app) settingsCommand() *cobra.Command {
	var (
		prefix   string
		defaults []string
	)
	register := func(name string) error {
		values, err := parseAssignments(defaults)
		if err != nil {
			return err
		}
		return a.resolver.RegisterCategory(settings.Category{Name: name, Prefix: prefix, Defaults: values})
	}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write scalar category settings",
	}
	cmd.PersistentFlags().StringVar(&prefix, "prefix", "", "storage key prefix (defaults to the category name)")
	cmd.PersistentFlags().StringArrayVar(&defaults, "default", nil, "default value as key=value, repeatable")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get CATEGORY",
			Short: "Print the category values merged over its defaults",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := register(args[0]); err != nil {
					return err
				}
				values, err := a.resolver.GetCategory(args[0])
				if err != nil {
					return err
				}
				return a.printJSON(values)
			},
		},
		&cobra.Command{
			Use:   "set CATEGORY KEY=VALUE...",
			Short: "Write category values; JSON literals are decoded",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := register(args[0]); err != nil {
					return err
				}
				partial, err := parseAssignments(args[1:])
				if err != nil {
					return err
				}
				return a.resolver.UpdateCategory(args[0], partial)
			},
		},
		&cobra.Command{
			Use:   "reset CATEGORY",
			Short: "Remove every stored value of the category",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := register(args[0]); err != nil {
					return err
				}
				return a.resolver.ResetCategory(args[0])
			},
		},
	)
	return cmd
}
