package main

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dirigent-dev/dirigent/agentloop"
	"github.com/dirigent-dev/dirigent/config"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools exposed to the model",
	Long: `List the tools exposed to the model, with their parameters.

The agent decides when to call these; the listing is for inspecting what a
run can do to the workspace.`,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)

	toolStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	descStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#9CA3AF"))

	paramStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#06B6D4"))

	ws, err := agentloop.NewWorkspace(".")
	if err != nil {
		return err
	}
	cfg := config.Default()
	registry := agentloop.NewRegistry(cfg.MaxConcurrentTools)
	if err := agentloop.RegisterCoreTools(registry, agentloop.NewLocalEnvironment(ws),
		cfg.ShellDefaultTimeoutMs, cfg.ShellMaxTimeoutMs); err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Available Tools"))
	fmt.Println()

	for _, def := range registry.Definitions() {
		fmt.Println(toolStyle.Render(def.Name))
		fmt.Println(descStyle.Render("  " + firstLine(def.Description)))
		for _, p := range schemaParams(def.Parameters) {
			fmt.Println(paramStyle.Render("    " + p))
		}
		fmt.Println()
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// schemaParams flattens a JSON Schema properties block into "name (type)"
// lines, required parameters first.
func schemaParams(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	required := make(map[string]bool)
	if req, ok := schema["required"].([]string); ok {
		for _, name := range req {
			required[name] = true
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	lines := make([]string, 0, len(names))
	for _, name := range names {
		typ := ""
		if prop, ok := props[name].(map[string]any); ok {
			typ, _ = prop["type"].(string)
		}
		suffix := ""
		if !required[name] {
			suffix = ", optional"
		}
		lines = append(lines, fmt.Sprintf("%s (%s%s)", name, typ, suffix))
	}
	return lines
}
