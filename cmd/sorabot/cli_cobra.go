package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func (o *rootOptions) configPath() string {
	return resolveConfigPath(o.configFile)
}

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sorabot",
		Short: "WhatsApp attendant for a food-delivery business with human handoff",
		Long: strings.TrimSpace(`sorabot answers one-to-one customer chats on WhatsApp with a fixed
greeting, a short AI-written reply, and an automatic silence whenever a
human attendant types from the paired phone.

Use CLI commands to onboard, chat locally as a customer, run the gateway
with its pairing page and dashboard API, and check readiness.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default ~/.sorabot/config.json or $SORABOT_CONFIG)")

	root.AddCommand(newOnboardCommand(opts))
	root.AddCommand(newChatCommand(opts))
	root.AddCommand(newGatewayCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newOnboardCommand(root *rootOptions) *cobra.Command {
	opts := onboardOptions{}

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Initialize ~/.sorabot config and workspace",
		Long:  "Create the configuration file, asking for the business name, transport, AI provider and API key.",
		Example: strings.Join([]string{
			"  sorabot onboard",
			"  sorabot onboard --defaults --provider openai --api-key sk-...",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = root.configPath()
			return onboardCmd(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing config without asking")
	cmd.Flags().BoolVar(&opts.defaults, "defaults", false, "Do not prompt; use flags and defaults")
	cmd.Flags().StringVar(&opts.businessName, "business-name", "", "Business name used in greetings")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "Messaging transport (whatsapp or discord)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "AI provider (gemini, openai, openrouter)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key for the selected provider")
	return cmd
}

func newChatCommand(root *rootOptions) *cobra.Command {
	opts := chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the attendant locally as a customer (no WhatsApp)",
		Long:  "Run the real reply pipeline against a console transport: greeting, trust reassurance, AI replies and typing delays.",
		Example: strings.Join([]string{
			"  sorabot chat",
			"  sorabot chat --instant",
			"  sorabot chat --message \"vocês entregam no centro?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = root.configPath()
			return chatCmd(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "One-shot customer message")
	cmd.Flags().BoolVar(&opts.instant, "instant", false, "Skip the human-like typing delay")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newGatewayCommand(root *rootOptions) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Run the messaging gateway, pairing page and dashboard API",
		Long:    "Connect the configured transport, serve the QR pairing page and operator API, and answer customers until interrupted.",
		Example: "  sorabot gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gatewayCmd(root.configPath(), debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, provider, and runtime readiness",
		Example: strings.Join([]string{
			"  sorabot status",
			"  sorabot status --probe",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd(cmd.OutOrStdout(), root.configPath(), probe)
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Send a test prompt to the AI provider")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  sorabot version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
