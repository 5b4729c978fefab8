package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/courier/internal/connection"
	"github.com/haasonsaas/courier/internal/observability"
	"github.com/haasonsaas/courier/internal/rooms"
	"github.com/haasonsaas/courier/internal/session"
	"github.com/haasonsaas/courier/internal/store"
	"github.com/haasonsaas/courier/pkg/models"
)

// stdoutNotifier prints transient request failures to the terminal.
type stdoutNotifier struct{}

func (stdoutNotifier) Notify(message string) {
	fmt.Fprintf(os.Stdout, "\n! %s\n> ", message)
}

// chatView renders session updates incrementally: only messages not yet
// printed, plus indicator and suggestion changes.
type chatView struct {
	mu            sync.Mutex
	sess          *session.Session
	printed       int
	lastIndicator string
}

func (v *chatView) render() {
	v.mu.Lock()
	defer v.mu.Unlock()

	msgs := v.sess.Messages()
	for _, msg := range msgs[v.printed:] {
		fmt.Printf("\r[%s] %s: %s\n> ", msg.CreatedAt.Local().Format("15:04"), msg.SenderName, msg.Content)
	}
	v.printed = len(msgs)

	if indicator := v.sess.IndicatorText(); indicator != v.lastIndicator {
		v.lastIndicator = indicator
		if indicator != "" {
			fmt.Printf("\r(%s)\n> ", indicator)
		}
	}
}

func buildChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <room-id>",
		Short: "Open a live chat view for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := args[0]

			cfg, client, authStore, err := roomContext(cmd)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

			manager := connection.NewManager(cfg.Server.SocketURL, cfg.Connection, authStore,
				connection.WithLogger(logger),
				connection.WithMetrics(metrics),
			)
			if err := manager.Initialize(cmd.Context()); err != nil {
				// Channel down: live push and typing degrade, sends still
				// work over REST.
				logger.Warn(cmd.Context(), "channel unavailable", "error", err)
			}
			defer manager.Teardown()

			var cache session.Cache
			if cfg.Cache.Enabled {
				localStore, err := store.Open(cfg.Cache.Path)
				if err != nil {
					logger.Warn(cmd.Context(), "cache unavailable", "error", err)
				} else {
					defer localStore.Close()
					cache = localStore
				}
			}

			var self models.User
			if user := authStore.User(); user != nil {
				self = *user
			}

			view := &chatView{}
			sess := session.New(session.Config{
				RoomID:   roomID,
				Self:     self,
				Backend:  client,
				Channel:  manager,
				Cache:    cache,
				Notifier: stdoutNotifier{},
				Presence: cfg.Presence,
				OnUpdate: func() { view.render() },
				Logger:   logger,
				Metrics:  metrics,
			})
			view.sess = sess

			if err := sess.Open(cmd.Context()); err != nil {
				logger.Warn(cmd.Context(), "history unavailable", "room_id", roomID, "error", err)
			}
			defer sess.Close(rooms.NavigateAway)

			fmt.Println("Connected. Type a message and press enter; /quit to exit.")
			fmt.Print("> ")

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				close(lines)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			for {
				select {
				case <-sigCh:
					fmt.Println()
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					text := strings.TrimSpace(line)
					if text == "/quit" {
						return nil
					}
					if text == "/replies" {
						for _, suggestion := range sess.Suggestions() {
							fmt.Printf("  %s\n", suggestion)
						}
						fmt.Print("> ")
						continue
					}
					sess.Keystroke(text)
					if err := sess.Send(cmd.Context(), text); err == nil {
						fmt.Print("> ")
					}
				}
			}
		},
	}
}
