package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/udevd/internal/config"
	"github.com/smazurov/udevd/internal/logging"
	"github.com/smazurov/udevd/internal/rules"
)

func newRulesCommand(opts *Options) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect rule files",
	}

	rulesCmd.AddCommand(newRulesCheckCommand(opts))

	return rulesCmd
}

// newRulesCheckCommand parses the configured rule directories and prints
// the resulting rule list, for rule-file authoring and CI validation.
func newRulesCheckCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse the configured rule directories and print the resulting rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				logging.GetLogger("rules").Warn("failed to load config", "error", err)
			}
			return runRulesCheck(opts.RulesDirs)
		},
	}
}

func runRulesCheck(dirs []string) error {
	logger := logging.GetLogger("rules")
	rules.OnDroppedRun = func(command string) {
		logger.Warn("dropped RUN+= with no ACTION== predicate in effect", "command", command)
	}

	list, err := rules.ParseDirectories(dirs)
	if err != nil {
		return fmt.Errorf("parse rule directories: %w", err)
	}

	for i, r := range list {
		logger.Info(fmt.Sprintf("rule %d", i), "rule", formatRule(r))
	}
	logger.Info("parsed rules", "count", len(list))

	return nil
}

func formatRule(r rules.Rule) string {
	s := fmt.Sprintf("action=%q subsystem=%q kernel=%q driver=%q devpath=%q tag=%q",
		r.Action, r.Subsystem, r.Kernel, r.Driver, r.Devpath, r.Tag)

	for _, kv := range r.Env {
		s += fmt.Sprintf(" env{%s}=%q", kv.Key, kv.Value)
	}
	for _, kv := range r.Attr {
		s += fmt.Sprintf(" attr{%s}=%q", kv.Key, kv.Value)
	}

	s += fmt.Sprintf(" name=%q owner=%q group=%q mode=%q symlink=%v",
		r.Name, r.Owner, r.Group, r.Mode, r.Symlink)

	for action, cmds := range r.Run {
		s += fmt.Sprintf(" run[%s]=%v", action, cmds)
	}

	s += fmt.Sprintf(" label=%q goto=%q ignore_device=%v last_rule=%v",
		r.Label, r.Goto, r.IgnoreDevice, r.LastRule)

	return s
}
