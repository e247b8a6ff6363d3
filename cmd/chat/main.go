package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/app"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/log"
)

const helpText = `Commands:
  /users   list users online
  /retry   reconnect after an error
  /quit    leave the room`

type options struct {
	configPath string
	logLevel   string
	endpoint   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "chat [username]",
		Short:        "Join the chat room from a terminal",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return run(cmd.Context(), opts, name, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error, off)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "room server WebSocket URL")

	return cmd
}

func run(ctx context.Context, opts options, name string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := log.New(opts.logLevel)
	cfg, path, err := config.Load(bootstrap, opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(config.Config{
		LogLevel: opts.logLevel,
		Client:   config.Client{Endpoint: opts.endpoint},
	})

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Str("endpoint", cfg.Client.Endpoint).Msg("configuration loaded")

	lines := readLines(ctx, in)

	name = strings.TrimSpace(name)
	for name == "" {
		fmt.Fprint(out, "Enter your username: ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			name = strings.TrimSpace(line)
			if name == "" {
				fmt.Fprintln(out, "Please enter a username")
			}
		}
	}

	chat := app.NewChat(cfg.Client, logger)
	defer chat.Close()

	fmt.Fprintf(out, "Joining %s as %s. Type /help for commands.\n", cfg.Client.Endpoint, name)
	if err := chat.Join(name); err != nil {
		logger.Debug().Err(err).Msg("join failed")
	}

	v := newView(out)
	v.render(chat.Snapshot(), chat.Status())

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case <-chat.Updates():
			v.render(chat.Snapshot(), chat.Status())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if handleLine(ctx, chat, v, out, line) {
				return nil
			}
		}
	}
}

// handleLine runs a slash command or sends line as a message. It reports
// whether the user asked to quit.
func handleLine(ctx context.Context, chat *app.Chat, v *view, out io.Writer, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, helpText)
		return false
	case "/users":
		v.users(chat.Snapshot())
		return false
	case "/retry":
		if err := chat.Retry(); err != nil {
			fmt.Fprintln(out, "! "+err.Error())
		}
		return false
	}

	if strings.HasPrefix(trimmed, "/") {
		fmt.Fprintf(out, "! Unknown command %s. Type /help for commands.\n", trimmed)
		return false
	}
	if !chat.SendMessage(ctx, line) {
		fmt.Fprintln(out, "! Not connected, message not sent")
	}
	return false
}

func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
