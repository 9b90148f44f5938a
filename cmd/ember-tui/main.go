// ABOUTME: Terminal client for ember-chat with streaming output.
// ABOUTME: Provides readline-style input, login, and session commands over the HTTP API.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/emberhq/ember-chat/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Chat server URL")
	user := flag.String("user", "", "Username (prompted if empty)")
	flag.Parse()

	fmt.Printf("ember-tui connected to %s\n", *server)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *user); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, username string) error {
	c, err := client.New(server, nil)
	if err != nil {
		return err
	}

	// A failed refresh means the session died under us
	c.Credentials().OnClear(func() {
		fmt.Println(color.YellowString("\n[session expired, please log in again]"))
	})

	reader := bufio.NewReader(os.Stdin)

	if err := login(ctx, c, reader, username); err != nil {
		return err
	}

	// One tracker per conversation; /new swaps it out
	tracker := client.NewSessionTracker()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if id, ok := tracker.ID(); ok {
			fmt.Printf("[%s]> ", shortID(id.String()))
		} else {
			fmt.Print("> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/sessions" {
			if err := listSessions(ctx, c); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if strings.HasPrefix(input, "/use") {
			args := strings.TrimSpace(strings.TrimPrefix(input, "/use"))
			if args == "" {
				fmt.Println("Usage: /use <session_id>")
			} else {
				next := client.NewSessionTracker()
				if _, err := next.Bind(args); err != nil {
					fmt.Printf("[error] %v\n", err)
				} else {
					tracker = next
					fmt.Printf("Now in session %s\n", shortID(args))
				}
			}
			fmt.Println()
			continue
		}

		if input == "/new" {
			tracker = client.NewSessionTracker()
			fmt.Println("Starting a new conversation")
			fmt.Println()
			continue
		}

		if input == "/history" {
			if err := showHistory(ctx, c, tracker); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if err := sendMessage(ctx, c, tracker, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

// login authenticates interactively, prompting for missing fields
func login(ctx context.Context, c *client.Client, reader *bufio.Reader, username string) error {
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	if err := c.Login(ctx, username, password); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n\n", username)
	return nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /sessions      List your conversations")
	fmt.Println("  /use <id>      Switch to an existing conversation")
	fmt.Println("  /new           Start a new conversation")
	fmt.Println("  /history       Show the current conversation's history")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}

// listSessions fetches and displays the user's conversations
func listSessions(ctx context.Context, c *client.Client) error {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}

	fmt.Println("Conversations:")
	for _, s := range sessions {
		fmt.Printf("  %s  %s\n", s.ID, s.Title)
	}
	return nil
}

// showHistory displays the current conversation's messages
func showHistory(ctx context.Context, c *client.Client, tracker *client.SessionTracker) error {
	id, ok := tracker.ID()
	if !ok {
		fmt.Println("No conversation selected. Send a message or /use <id> first.")
		return nil
	}

	history, err := c.History(ctx, id.String())
	if err != nil {
		return err
	}

	if len(history.Messages) == 0 {
		fmt.Println("No messages yet")
		return nil
	}

	fmt.Printf("History for %s:\n", history.Title)
	fmt.Println(strings.Repeat("-", 60))
	for _, msg := range history.Messages {
		prefix := color.BlueString("you  ")
		if msg.Role == "assistant" {
			prefix = color.GreenString("chat ")
		}
		fmt.Printf("%s %s\n", prefix, msg.Content)
	}
	fmt.Println(strings.Repeat("-", 60))
	return nil
}

// sendMessage submits a message and streams the reply to the terminal
func sendMessage(ctx context.Context, c *client.Client, tracker *client.SessionTracker, message string) error {
	exchange := c.NewExchange(tracker)

	// Print only the new suffix of the growing partial answer
	var printed int
	exchange.OnChunk = func(partial string) {
		fmt.Print(partial[printed:])
		printed = len(partial)
	}

	_, err := exchange.Send(ctx, message)
	fmt.Println()
	return err
}

// shortID abbreviates a UUID for the prompt
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
