package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/comigor/jobchat-go/internal/chatapi"
	"github.com/comigor/jobchat-go/internal/chatlog"
	"github.com/comigor/jobchat-go/internal/logger"
	"github.com/comigor/jobchat-go/internal/telemetry"
	"github.com/comigor/jobchat-go/internal/transport"
	"github.com/comigor/jobchat-go/internal/widget"
)

const chatHelp = `Commands:
  /quick        list quick replies
  /quick N      send quick reply N
  /min          minimize or restore the chat
  /close        close the chat (history is kept)
  /open         reopen the chat
  /status       show connection status
  /history [N]  show the last N messages stored on the server
  /quit         exit
Anything else is sent as a message.`

func newChatCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat widget in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Keep stdout for the conversation.
			log := logger.To(os.Stderr)

			var rec telemetry.Recorder = telemetry.Nop{}
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				p, err := telemetry.NewPrometheus(reg)
				if err != nil {
					return err
				}
				defer p.Close()
				rec = p
				go serveMetrics(ctx, metricsAddr, reg)
			}

			opts := widget.Options{
				BackendURL:           cfg.Chat.BackendURL,
				Dialer:               transport.NewWebsocketDialer(cfg.Chat.HandshakeTimeout),
				ReconnectDelay:       cfg.Chat.ReconnectDelay,
				MaxReconnectAttempts: cfg.Chat.MaxReconnectAttempts,
				PingInterval:         cfg.Chat.PingInterval,
				LogWarnThreshold:     cfg.Chat.LogWarnThreshold,
				Telemetry:            rec,
				Logger:               log,
			}
			if cfg.Chat.RESTFallback {
				opts.Fallback = chatapi.NewClient(cfg.Chat.BackendURL, cfg.Chat.RESTTimeout)
				opts.FallbackTimeout = cfg.Chat.RESTTimeout
			}
			c, err := widget.New(opts)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			if err := c.Activate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Job Assistant. Type /help for commands.")
			hist := chatapi.NewClient(cfg.Chat.BackendURL, cfg.Chat.RESTTimeout)
			return runChat(ctx, c, hist, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve widget metrics on this address (e.g. :9090)")
	return cmd
}

// defaultHistoryLimit is how many stored messages /history prints.
const defaultHistoryLimit = 10

// transcripts fetches the server-side record of a session.
type transcripts interface {
	History(ctx context.Context, sessionID string, limit int) (chatapi.HistoryResponse, error)
}

// runChat prints the conversation as it changes and feeds input lines to c.
func runChat(ctx context.Context, c *widget.Controller, tr transcripts, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	printed := 0
	status := ""
	typing := false
	render := func() {
		for _, m := range c.MessagesSince(printed) {
			printMessage(out, m)
			printed++
		}
		if s := c.StatusLabel(); s != status {
			status = s
			fmt.Fprintf(out, "[%s]\n", s)
		}
		if t := c.Typing(); t != typing {
			typing = t
			if t {
				fmt.Fprintln(out, "... AI is thinking")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Changes():
			render()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, c, tr, strings.TrimSpace(line), out)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, c *widget.Controller, tr transcripts, line string, out io.Writer) (bool, error) {
	switch {
	case line == "/quit":
		return true, nil
	case line == "/help":
		fmt.Fprintln(out, chatHelp)
	case line == "/status":
		fmt.Fprintf(out, "[%s] session %s\n", c.StatusLabel(), c.SessionID())
	case line == "/history" || strings.HasPrefix(line, "/history "):
		limit := defaultHistoryLimit
		if arg := strings.TrimSpace(strings.TrimPrefix(line, "/history")); arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				return false, errors.New("history limit must be a positive number")
			}
			limit = n
		}
		return false, printHistory(ctx, c, tr, limit, out)
	case line == "/min":
		return false, c.Toggle()
	case line == "/close":
		return false, c.Deactivate()
	case line == "/open":
		return false, c.Activate()
	case line == "/quick":
		for i, q := range c.QuickReplies() {
			fmt.Fprintf(out, "  %d. %s\n", i+1, q)
		}
	case strings.HasPrefix(line, "/quick "):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/quick ")))
		replies := c.QuickReplies()
		if err != nil || n < 1 || n > len(replies) {
			return false, fmt.Errorf("pick a quick reply between 1 and %d", len(replies))
		}
		return false, c.SendQuickReply(replies[n-1])
	default:
		err := c.SendUserMessage(line)
		if errors.Is(err, widget.ErrNotConnected) {
			return false, errors.New("not connected yet; try again in a moment")
		}
		return false, err
	}
	return false, nil
}

func printMessage(out io.Writer, m chatlog.Message) {
	who := "you"
	if m.Role == chatlog.RoleBot {
		who = "bot"
	}
	ts := m.Timestamp
	if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
		ts = t.Local().Format("15:04")
	}
	fmt.Fprintf(out, "%s %s: %s\n", ts, who, m.Content)
}

func printHistory(ctx context.Context, c *widget.Controller, tr transcripts, limit int, out io.Writer) error {
	id := c.SessionID()
	if id == "" {
		return errors.New("no session yet; /open the chat first")
	}
	h, err := tr.History(ctx, id, limit)
	if err != nil {
		return err
	}
	if len(h.Data) == 0 {
		fmt.Fprintln(out, "(no stored messages)")
		return nil
	}
	fmt.Fprintf(out, "-- last %d stored messages --\n", len(h.Data))
	for _, e := range h.Data {
		role := chatlog.RoleUser
		if e.MessageType == "bot" {
			role = chatlog.RoleBot
		}
		printMessage(out, chatlog.Message{Role: role, Content: e.Content, Timestamp: e.Timestamp.Format(time.RFC3339Nano)})
	}
	fmt.Fprintln(out, "--")
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := runServer(ctx, srv); err != nil {
		logger.L.Warn("metrics server stopped", "error", err)
	}
}
