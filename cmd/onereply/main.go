// Command onereply runs the reply pipeline offline: split a department
// document, consolidate approved sections and inspect similarity grouping.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"onereply/api/internal/atoms"
	"onereply/api/internal/config"
	"onereply/api/internal/consolidate"
	"onereply/api/internal/departments"
	"onereply/api/internal/normalize"
	"onereply/api/internal/similarity"
	"onereply/api/internal/splitter"
	"onereply/api/internal/store"
)

var (
	departmentsFile string
	policyFile      string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "onereply",
		Short:         "Offline tools for multi-department replies",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&departmentsFile, "departments", "", "YAML department registry (defaults to the built-in registry)")
	root.PersistentFlags().StringVar(&policyFile, "policy", "", "YAML consolidation policy")

	root.AddCommand(newSplitCmd(), newConsolidateCmd(), newSimilarityCmd(), newGroupCmd())
	return root
}

func newSplitCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "split [file|-]",
		Short: "Split a department document into topic sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			doc := normalize.Content(string(raw))
			parts := splitter.Split(doc, department)
			if !splitter.IsWellFormed(doc) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: document is not well formed, emitted fallback section")
			}
			return writeJSON(cmd.OutOrStdout(), parts)
		},
	}
	cmd.Flags().StringVarP(&department, "department", "d", "", "department key the document belongs to")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func newConsolidateCmd() *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "consolidate [sections.json|-]",
		Short: "Consolidate approved sections into one reply",
		Long:  "Reads a JSON array of sections, in review order, and prints the unified atoms. Only approved sections contribute.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var sections []store.Section
			if err := json.Unmarshal(raw, &sections); err != nil {
				return fmt.Errorf("parse sections: %w", err)
			}
			consolidator, err := newConsolidator()
			if err != nil {
				return err
			}
			unified := consolidator.Consolidate(sections)
			if !text {
				return writeJSON(cmd.OutOrStdout(), unified)
			}
			rendered := consolidate.RenderAll(unified)
			for _, topic := range atoms.Topics {
				if rendered[topic] == "" {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "== %s ==\n%s\n\n", topic.Title(), rendered[topic])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "print rendered topics instead of atoms")
	return cmd
}

func newSimilarityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <a> <b>",
		Short: "Print the token similarity of two statements",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", similarity.Similarity(args[0], args[1]))
			return nil
		},
	}
}

func newGroupCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "group [file|-]",
		Short: "Group near-duplicate lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var lines []string
			scanner := bufio.NewScanner(strings.NewReader(string(raw)))
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					lines = append(lines, line)
				}
			}
			return writeJSON(cmd.OutOrStdout(), similarity.Group(lines, threshold))
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "similarity a line must exceed to join a group")
	return cmd
}

func newConsolidator() (*consolidate.Consolidator, error) {
	registry := departments.Default()
	if departmentsFile != "" {
		loaded, err := departments.LoadFile(departmentsFile)
		if err != nil {
			return nil, err
		}
		registry = loaded
	}
	policy, err := config.LoadPolicy(policyFile)
	if err != nil {
		return nil, err
	}
	return consolidate.New(registry, consolidate.WithPolicy(policy)), nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
