// Command chat is a minimal terminal client for the relay. It keeps a local
// session cache in sync with the stream and demonstrates the full send
// lifecycle: optimistic update, streamed tool activity, reconcile or
// rollback.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/agent-stream-relay/internal/client"
	"github.com/tjfontaine/agent-stream-relay/internal/mutation"
	"github.com/tjfontaine/agent-stream-relay/internal/session"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "relay base URL")
	sessionID := flag.String("session", "", "session id to resume (default: new session)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	wsURL := strings.Replace(*serverURL, "http", "ws", 1) + "/v1/stream"
	streamClient := client.New(wsURL, client.WithLogger(logger))
	history := client.NewHistoryClient(*serverURL)

	cache, err := session.NewCache(session.DefaultCacheSize, logger)
	if err != nil {
		log.Fatalf("Failed to create session cache: %v", err)
	}
	coordinator := mutation.New(cache, mutation.ClientSender{Client: streamClient}, logger)

	id := *sessionID
	if id == "" {
		id = uuid.New().String()
		fmt.Printf("session: %s\n", id)
	} else if err := cache.Hydrate(context.Background(), history.Loader(), id); err != nil {
		log.Fatalf("Failed to hydrate session %s: %v", id, err)
	} else {
		for _, msg := range cache.Messages(id) {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" {
			return
		}

		done := make(chan struct{})
		err := coordinator.Send(context.Background(), id, text, func(err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
			close(done)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		<-done

		printTurn(cache, id)
	}
}

func printTurn(cache *session.Cache, sessionID string) {
	messages := cache.Messages(sessionID)
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Role == session.RoleAssistant {
		fmt.Printf("[assistant] %s\n", last.Content)
	}
	for _, tc := range cache.ToolCalls(sessionID) {
		if tc.InFlight() {
			fmt.Printf("  tool %s: running\n", tc.Name)
		}
	}
}
