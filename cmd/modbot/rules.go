package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/config"
	"github.com/aatumaykin/modbot/internal/constants"
	"github.com/aatumaykin/modbot/internal/logger"
)

var (
	rulesConfigPath string
	rulesFilePath   string
	rulesOutput     string
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit auto-delete rules offline",
	Long: `Read or change the persisted auto-delete rules without a running bot.
A running bot picks up offline edits on its next start.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List auto-delete rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRuleStore()
		if err != nil {
			return err
		}
		return writeRules(cmd.OutOrStdout(), store.All(), rulesOutput)
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <channel> <limit> <seconds>",
	Short: "Set the rule of a channel",
	Long: `Set the retention rule of a channel. The channel is "<platform>:<id>",
for example discord:123456789 or telegram:-1001234567890; a bare numeric id is
a Discord channel.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := autodelete.NormalizeChannelKey(args[0])
		if err != nil {
			return err
		}
		if platform, _, _ := autodelete.SplitChannelKey(key); platform != autodelete.PlatformDiscord && platform != autodelete.PlatformTelegram {
			return fmt.Errorf("%w: %s", autodelete.ErrUnknownPlatform, platform)
		}
		limit, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", args[1], err)
		}
		seconds, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid seconds %q: %w", args[2], err)
		}

		rule := autodelete.RetentionRule{ChannelID: key, MessageLimit: uint(limit), MaxAgeSeconds: uint(seconds)}
		if rule.Inert() {
			return errors.New("limit and seconds cannot both be zero, use rules off to disable")
		}

		store, err := openRuleStore()
		if err != nil {
			return err
		}
		if err := store.Set(rule); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule saved: %s\n", rule)
		return nil
	},
}

var rulesOffCmd = &cobra.Command{
	Use:   "off <channel>",
	Short: "Remove the rule of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := autodelete.NormalizeChannelKey(args[0])
		if err != nil {
			return err
		}

		store, err := openRuleStore()
		if err != nil {
			return err
		}
		removed, err := store.Remove(key)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "No rule for %s\n", key)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule removed: %s\n", key)
		return nil
	},
}

// resolveRulesPath: флаг --rules, затем путь из конфига, затем путь по умолчанию.
func resolveRulesPath() (string, error) {
	if rulesFilePath != "" {
		return rulesFilePath, nil
	}

	configPath := rulesConfigPath
	if configPath == "" {
		configPath = constants.DefaultConfigPath
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			return constants.DefaultRulesPath, nil
		}
	}

	if err := config.LoadEnvOptional(constants.DefaultEnvPath); err != nil {
		return "", fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.AutoDelete.RulesPath, nil
}

func openRuleStore() (*autodelete.RuleStore, error) {
	path, err := resolveRulesPath()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return nil, err
	}

	store := autodelete.NewRuleStore(path, log)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", path, err)
	}
	return store, nil
}

// ruleView - правило в выводе list.
type ruleView struct {
	Channel       string `json:"channel" yaml:"channel"`
	MessageLimit  uint   `json:"limit" yaml:"limit"`
	MaxAgeSeconds uint   `json:"time" yaml:"time"`
}

func writeRules(w io.Writer, rules []autodelete.RetentionRule, format string) error {
	views := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, ruleView{Channel: r.ChannelID, MessageLimit: r.MessageLimit, MaxAgeSeconds: r.MaxAgeSeconds})
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHANNEL\tLIMIT\tMAX AGE")
		for _, r := range rules {
			maxAge := "-"
			if r.MaxAgeSeconds > 0 {
				maxAge = r.MaxAge().String()
			}
			limit := "-"
			if r.MessageLimit > 0 {
				limit = strconv.FormatUint(uint64(r.MessageLimit), 10)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ChannelID, limit, maxAge)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (expected table, json, yaml)", format)
	}
}

func init() {
	rulesCmd.PersistentFlags().StringVarP(&rulesConfigPath, "config", "c", "", "Path to config file (default ./config.toml)")
	rulesCmd.PersistentFlags().StringVarP(&rulesFilePath, "rules", "r", "", "Path to the rules file, overrides the config")
	rulesListCmd.Flags().StringVarP(&rulesOutput, "output", "o", "table", "Output format: table, json, yaml")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesCmd.AddCommand(rulesOffCmd)
}
