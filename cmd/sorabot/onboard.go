package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/providers"
)

type onboardOptions struct {
	configPath   string
	force        bool
	defaults     bool
	businessName string
	transport    string
	provider     string
	apiKey       string
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// skip answers every prompt with its default.
	skip bool
}

func (p *prompter) ask(question, def string) (string, error) {
	if p.skip {
		return def, nil
	}
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return def, nil
		}
		return "", err
	}
	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}
	return def, nil
}

func onboardCmd(in io.Reader, out io.Writer, opts onboardOptions) error {
	p := &prompter{in: bufio.NewReader(in), out: out, skip: opts.defaults}

	if fileExists(opts.configPath) && !opts.force {
		if opts.defaults {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", opts.configPath)
		}
		fmt.Fprintf(out, "Config already exists at %s\n", opts.configPath)
		answer, err := p.ask("Overwrite? (y/n)", "n")
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		answer = strings.ToLower(answer)
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	var err error

	answer := func(flagValue, question, def string) string {
		if err != nil {
			return def
		}
		if v := strings.TrimSpace(flagValue); v != "" {
			return v
		}
		var v string
		v, err = p.ask(question, def)
		return v
	}

	cfg.Bot.BusinessName = answer(opts.businessName, "Business name", cfg.Bot.BusinessName)
	cfg.Channels.Transport = strings.ToLower(answer(opts.transport, "Transport (whatsapp/discord)", cfg.Channels.Transport))
	cfg.Providers.Provider = providers.NormalizeProviderName(answer(opts.provider, "AI provider (gemini/openai/openrouter)", cfg.Providers.Provider))
	key := answer(opts.apiKey, "API key (blank to set later)", "")
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	switch cfg.TransportName() {
	case config.TransportWhatsApp, config.TransportDiscord:
	default:
		return fmt.Errorf("unsupported transport %q (use %s or %s)", cfg.Channels.Transport, config.TransportWhatsApp, config.TransportDiscord)
	}
	if err := setProviderKey(cfg, key); err != nil {
		return err
	}

	if err := config.SaveConfig(opts.configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkspacePath(), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	fmt.Fprintf(out, "%s is ready!\n", appName)
	fmt.Fprintln(out, "\nNext steps:")
	step := 1
	if key == "" {
		fmt.Fprintf(out, "  %d. Add your %s API key to %s\n", step, cfg.Providers.Provider, opts.configPath)
		step++
	}
	if cfg.TransportName() == config.TransportDiscord {
		fmt.Fprintf(out, "  %d. Add your Discord bot token to channels.discord.token\n", step)
		step++
	}
	fmt.Fprintf(out, "  %d. Try it locally: %s chat\n", step, appName)
	fmt.Fprintf(out, "  %d. Run gateway: %s gateway (then open http://%s/ to pair)\n", step+1, appName, cfg.GatewayAddr())
	fmt.Fprintf(out, "  %d. Check readiness: %s status\n", step+2, appName)
	return nil
}

func setProviderKey(cfg *config.Config, key string) error {
	var target *config.ProviderConfig
	switch cfg.Providers.Provider {
	case providers.ProviderGemini:
		target = &cfg.Providers.Gemini
	case providers.ProviderOpenAI:
		target = &cfg.Providers.OpenAI
	case providers.ProviderOpenRouter:
		target = &cfg.Providers.OpenRouter
	default:
		return fmt.Errorf("unsupported provider %q (supported: %s)", cfg.Providers.Provider, strings.Join(providers.SupportedProviders(), ", "))
	}
	if key != "" {
		target.APIKey = key
	}
	return nil
}
