package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/desk/internal/output"
	"github.com/joescharf/desk/internal/patterns"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect the keyword and phrase tables",
	Long: `Inspect the keyword and phrase tables used to classify messages.

The built-in tables can be overridden per table with a YAML file set in
patterns.file. Use 'desk patterns show > patterns.yaml' as a starting point.`,
}

var patternsShowCmd = &cobra.Command{
	Use:   "show [table...]",
	Short: "Print the effective tables as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsShowRun(args)
	},
}

var patternsCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a pattern override file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsCheckRun(args[0])
	},
}

var patternsMatchCmd = &cobra.Command{
	Use:   "match <text>",
	Short: "Show which rules match a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsMatchRun(strings.Join(args, " "))
	},
}

func init() {
	patternsCmd.AddCommand(patternsShowCmd, patternsCheckCmd, patternsMatchCmd)
	rootCmd.AddCommand(patternsCmd)
}

func patternsShowRun(tables []string) error {
	lib, err := loadPatterns()
	if err != nil {
		return err
	}

	specs := lib.Specs()
	if len(tables) > 0 {
		picked := make(map[string][]patterns.RuleSpec, len(tables))
		for _, name := range tables {
			spec, ok := specs[name]
			if !ok {
				return fmt.Errorf("unknown table %q (known: %s)", name, strings.Join(patterns.TableNames(), ", "))
			}
			picked[name] = spec
		}
		specs = picked
	}

	enc := yaml.NewEncoder(ui.Out)
	enc.SetIndent(2)
	if err := enc.Encode(specs); err != nil {
		return fmt.Errorf("encode patterns: %w", err)
	}
	return enc.Close()
}

func patternsCheckRun(path string) error {
	lib, err := patterns.LoadFile(path)
	if err != nil {
		return err
	}

	base := patterns.Default().Specs()
	specs := lib.Specs()
	table := ui.Table([]string{"Table", "Rules", "Patterns", "Source"})
	for _, name := range patterns.TableNames() {
		rules := specs[name]
		n := 0
		for _, r := range rules {
			n += len(r.Patterns)
		}
		source := "default"
		if !sameSpecs(rules, base[name]) {
			source = output.Yellow("override")
		}
		_ = table.Append([]string{name, fmt.Sprint(len(rules)), fmt.Sprint(n), source})
	}
	_ = table.Render()

	ui.Success("%s is valid", path)
	return nil
}

func sameSpecs(a, b []patterns.RuleSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Tag != b[i].Tag || a[i].Weight != b[i].Weight || len(a[i].Patterns) != len(b[i].Patterns) {
			return false
		}
		for j := range a[i].Patterns {
			if a[i].Patterns[j] != b[i].Patterns[j] {
				return false
			}
		}
	}
	return true
}

func patternsMatchRun(text string) error {
	lib, err := loadPatterns()
	if err != nil {
		return err
	}

	var rows [][]string
	for _, name := range patterns.TableNames() {
		t, _ := lib.Table(name)
		for _, r := range t {
			phrases := r.Phrases(text)
			if len(phrases) == 0 {
				continue
			}
			sort.Strings(phrases)
			rows = append(rows, []string{name, r.Tag, fmt.Sprintf("%.1f", r.Weight), strings.Join(phrases, ", ")})
		}
	}
	if len(rows) == 0 {
		ui.Info("No rules match.")
		return nil
	}

	table := ui.Table([]string{"Table", "Tag", "Weight", "Matched"})
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()
	return nil
}
