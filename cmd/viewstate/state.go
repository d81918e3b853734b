package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/goliatone/go-viewstate/schema"
	"github.com/spf13/cobra"
)

func (a *app) stateCommand() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted state paths",
	}
	cmd.PersistentFlags().StringVarP(&input, "file", "f", "", "JSON object to load instead of persisted state (- for stdin)")

	var withSchema bool
	describe := &cobra.Command{
		Use:   "describe",
		Short: "List leaf paths and their types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.loadStore(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			if withSchema {
				doc, err := schema.Generate(store.Snapshot(), schema.WithTitle("viewstate"))
				if err != nil {
					return err
				}
				return a.printJSON(doc)
			}
			for _, field := range store.Describe() {
				fmt.Fprintf(a.out, "%s\t%s\n", field.Path, field.Type)
			}
			return nil
		},
	}
	describe.Flags().BoolVar(&withSchema, "schema", false, "print a JSON Schema instead")

	set := &cobra.Command{
		Use:   "set PATH VALUE",
		Short: "Write a value; persisted roots are mirrored to storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.InOrStdin(), "")
			if err != nil {
				return err
			}
			store.Set(args[0], parseValue(args[1]), viewstate.Source("cli"))
			if _, ok := store.Get(args[0]); !ok {
				return fmt.Errorf("invalid path %q", args[0])
			}
			if !persisted(a.cfg.Persist, args[0]) {
				fmt.Fprintf(a.out, "%s is not under a persisted root\n", args[0])
			}
			return nil
		},
	}

	eval := &cobra.Command{
		Use:   "eval EXPRESSION",
		Short: "Evaluate an expression against the state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			evaluator, err := a.evaluator()
			if err != nil {
				return err
			}
			cache := viewstate.NewComputedCache(store,
				viewstate.WithEvaluator(evaluator),
				viewstate.WithEvaluatorLogger(viewstate.SlogEvaluatorLogger(a.logger)),
			)
			value, err := cache.Evaluate(args[0])
			if err != nil {
				return err
			}
			return a.printJSON(value)
		},
	}

	cmd.AddCommand(describe, set, eval)
	return cmd
}

// loadStore restores the persisted roots and then overlays the JSON object
// read from input, if any.
func (a *app) loadStore(stdin io.Reader, input string) (*viewstate.Store, error) {
	store := viewstate.NewStore(
		viewstate.WithLogger(a.logger),
		viewstate.WithPersistence(a.storage, a.cfg.Persist...),
	)
	restored := store.Restore()
	a.logger.Debug("state restored", slog.Int("paths", restored))
	if input == "" {
		return store, nil
	}

	var (
		raw []byte
		err error
	)
	if input == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(input)
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	roots := make([]string, 0, len(doc))
	for root := range doc {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		store.Set(root, doc[root], viewstate.Silent())
	}
	return store, nil
}

func (a *app) evaluator() (viewstate.Evaluator, error) {
	return viewstate.NewEngine(a.cfg.Evaluator, viewstate.NewProgramCache(), viewstate.ViewerFunctions())
}

func persisted(roots []string, path string) bool {
	root, _, _ := strings.Cut(path, ".")
	for _, candidate := range roots {
		if candidate == root {
			return true
		}
	}
	return false
}
