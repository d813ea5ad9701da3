package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/channels"
	"github.com/sushiaki/sorabot/pkg/providers"
)

type chatOptions struct {
	configPath string
	message    string
	debug      bool
	instant    bool
}

// localChat drives the real dispatcher against the console transport.
type localChat struct {
	dispatcher *agent.Dispatcher
	console    *channels.ConsoleChannel
	out        io.Writer
}

func newLocalChat(d *agent.Dispatcher, console *channels.ConsoleChannel, out io.Writer) *localChat {
	return &localChat{dispatcher: d, console: console, out: out}
}

// say runs one customer line through the dispatcher. The reply itself is
// written by the console transport.
func (c *localChat) say(ctx context.Context, text string) agent.Result {
	res := c.dispatcher.Handle(ctx, c.console.Inbound(text))
	switch {
	case res.SendErr != nil:
		fmt.Fprintf(c.out, "Error: %v\n", res.SendErr)
	case res.Outcome == agent.OutcomeSilenced:
		fmt.Fprintln(c.out, "(atendente humano no controle, sem resposta automática)")
	case res.Outcome == agent.OutcomeFallback:
		fmt.Fprintln(c.out, "(resposta de contingência: IA indisponível)")
	}
	return res
}

func chatCmd(opts chatOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg, opts.debug)

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	console := channels.NewConsoleChannel(msgBus, os.Stdout, !opts.instant)
	manager := channels.NewEmptyManager(msgBus)
	manager.RegisterChannel(console.Name(), console)

	ctx := context.Background()
	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	defer manager.StopAll(ctx)

	provider := buildProvider(cfg)
	dopts := agent.Options{AutoReply: true, DefaultChannel: channels.ConsoleChannelName}
	if opts.instant {
		dopts.Sleep = func(context.Context, time.Duration) error { return nil }
	}
	chat := newLocalChat(buildDispatcher(cfg, msgBus, provider, manager, dopts), console, os.Stdout)

	if strings.TrimSpace(opts.message) != "" {
		chat.say(ctx, opts.message)
		return nil
	}

	name := providers.ActiveProviderName(cfg)
	if provider == nil {
		name += ", offline"
	}
	fmt.Printf("%s local chat as a customer of %s (%s). Ctrl+C to exit\n\n", appName, cfg.Bot.BusinessName, name)
	interactiveMode(ctx, chat)
	return nil
}

func interactiveMode(ctx context.Context, chat *localChat) {
	prompt := "Você: "

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".sorabot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, chat, os.Stdin, prompt)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleChatLine(ctx, chat, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, chat *localChat, in io.Reader, prompt string) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(chat.out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				fmt.Fprintln(chat.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(chat.out, "Error reading input: %v\n", err)
			return
		}
		if !handleChatLine(ctx, chat, line) {
			return
		}
	}
}

// handleChatLine returns false when the user asked to leave.
func handleChatLine(ctx context.Context, chat *localChat, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Fprintln(chat.out, "Goodbye!")
		return false
	}
	chat.say(ctx, input)
	return true
}
