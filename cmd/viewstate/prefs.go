package main

import (
	"fmt"

	"github.com/goliatone/go-viewstate/pkg/settings"
	"github.com/spf13/cobra"
)

func (a *app) prefsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Resolve and edit per-document key preferences",
	}
	cmd.AddCommand(
		a.prefsResolveCommand(),
		a.prefsSaveCommand(),
		a.prefsClearCommand(),
		a.prefsDefaultCommand(),
		a.prefsDiffCommand(),
		a.prefsStatusCommand(),
	)
	return cmd
}

func documentArg(args []string, index int) string {
	if len(args) > index {
		return args[index]
	}
	return ""
}

func (a *app) prefsResolveCommand() *cobra.Command {
	var (
		known []string
		trace bool
	)
	cmd := &cobra.Command{
		Use:   "resolve CATEGORY [DOCUMENT]",
		Short: "Print the visible keys for a document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			keys, resolved := a.resolver.ResolveWithTrace(args[0], documentArg(args, 1), known)
			if trace {
				return a.printJSON(resolved)
			}
			a.printLines(keys)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&known, "keys", nil, "every key currently available")
	cmd.Flags().BoolVar(&trace, "trace", false, "print per-tier provenance as JSON")
	return cmd
}

func (a *app) prefsSaveCommand() *cobra.Command {
	var known []string
	cmd := &cobra.Command{
		Use:   "save CATEGORY DOCUMENT KEY...",
		Short: "Store the ordered keys chosen for a document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []settings.SaveOption
			if cmd.Flags().Changed("keys") {
				opts = append(opts, settings.WithKnownKeys(known))
			}
			stored, err := a.resolver.Save(args[0], args[1], args[2:], opts...)
			if err != nil {
				return err
			}
			if stored {
				fmt.Fprintln(a.out, "override stored")
			} else {
				fmt.Fprintln(a.out, "override cleared")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&known, "keys", nil, "every key currently available")
	return cmd
}

func (a *app) prefsClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear CATEGORY DOCUMENT",
		Short: "Remove the override of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.resolver.ClearOverride(args[0], args[1])
		},
	}
}

func (a *app) prefsDefaultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Manage the global default of a category",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get CATEGORY",
			Short: "Print the global default",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				keys, ok := a.resolver.GlobalDefault(args[0])
				if !ok {
					return fmt.Errorf("no global default for %q", args[0])
				}
				a.printLines(keys)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set CATEGORY KEY...",
			Short: "Replace the global default",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.resolver.SetGlobalDefault(args[0], args[1:])
			},
		},
		&cobra.Command{
			Use:   "clear CATEGORY",
			Short: "Remove the global default",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.resolver.ClearGlobalDefault(args[0])
			},
		},
	)
	return cmd
}

func (a *app) prefsDiffCommand() *cobra.Command {
	var baseline, current []string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Count keys added and removed between two lists",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.printJSON(settings.Diff(baseline, current))
		},
	}
	cmd.Flags().StringSliceVar(&baseline, "baseline", nil, "reference key list")
	cmd.Flags().StringSliceVar(&current, "current", nil, "key list to compare")
	return cmd
}

func (a *app) prefsStatusCommand() *cobra.Command {
	var known []string
	cmd := &cobra.Command{
		Use:   "status CATEGORY [DOCUMENT]",
		Short: "Summarise the preferences of a document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.printJSON(a.resolver.Status(args[0], documentArg(args, 1), known))
		},
	}
	cmd.Flags().StringSliceVar(&known, "keys", nil, "every key currently available")
	return cmd
}
