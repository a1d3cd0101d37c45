package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vanotis720/vochat/internal/profile"
	"github.com/vanotis720/vochat/internal/tui/client"
	"golang.org/x/term"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := profile.SocketPath(profileName)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "login":
		cmdLogin(ctx, c, args[1:])
	case "logout":
		fatalOnError(c.Logout(ctx))
		fmt.Println("Signed out.")
	case "messages":
		cmdMessages(ctx, c, *jsonFlag)
	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: vochatctl send <text>")
			os.Exit(1)
		}
		fatalOnError(c.Send(ctx, strings.Join(args[1:], " ")))
		fmt.Println("Sent.")
	case "record":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: vochatctl record <start|stop|ack>")
			os.Exit(1)
		}
		cmdRecord(ctx, c, args[1])
	case "play":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: vochatctl play <message-id>")
			os.Exit(1)
		}
		state, err := c.Play(ctx, args[1])
		fatalOnError(err)
		fmt.Printf("Playback: %s\n", state)
	case "pause":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: vochatctl pause <message-id>")
			os.Exit(1)
		}
		state, err := c.Pause(ctx, args[1])
		fatalOnError(err)
		fmt.Printf("Playback: %s\n", state)
	case "events":
		cmdEvents(c, *jsonFlag, flagValue(args[1:], "--prefix"))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: vochatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  login [email]          Sign in (prompts for password)")
	fmt.Fprintln(os.Stderr, "  logout                 Sign out")
	fmt.Fprintln(os.Stderr, "  messages               List conversation messages")
	fmt.Fprintln(os.Stderr, "  send <text>            Send a text message")
	fmt.Fprintln(os.Stderr, "  record start|stop|ack  Drive the voice recording pipeline")
	fmt.Fprintln(os.Stderr, "  play <message-id>      Play or resume an audio message")
	fmt.Fprintln(os.Stderr, "  pause <message-id>     Pause an audio message")
	fmt.Fprintln(os.Stderr, "  events [--prefix p]    Follow the daemon event stream")
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	resp, err := c.Status(ctx)
	fatalOnError(err)
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:      %s\n", resp.Profile)
	fmt.Printf("Status:       %s\n", resp.Status)
	fmt.Printf("Uptime:       %dms\n", resp.UptimeMs)
	if resp.UserID != "" {
		fmt.Printf("Signed in:    %s (%s)\n", resp.Email, resp.UserID)
	} else {
		fmt.Println("Signed in:    no")
	}
	if resp.ConversationID != "" {
		fmt.Printf("Conversation: %s (%d messages)\n", resp.ConversationID, resp.Messages)
	}
	fmt.Printf("Recording:    %s\n", resp.Recording)
}

func cmdLogin(ctx context.Context, c *client.Client, args []string) {
	reader := bufio.NewReader(os.Stdin)

	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		fatalOnError(err)
		email = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	fatalOnError(err)

	fatalOnError(c.Login(ctx, email, string(password)))
	fmt.Println("Signed in.")
}

func cmdMessages(ctx context.Context, c *client.Client, jsonOut bool) {
	msgs, err := c.Messages(ctx)
	fatalOnError(err)
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.CreatedAt).Format("2006-01-02 15:04:05")
		body := m.Content
		if m.Kind == "audio" {
			body = "[voice message] " + m.Content
		}
		fmt.Printf("%s  %-12s %-4s %s  %s\n", ts, m.UserID, m.Status, m.ID, body)
	}
}

func cmdRecord(ctx context.Context, c *client.Client, subcmd string) {
	var (
		state string
		err   error
	)
	switch subcmd {
	case "start":
		state, err = c.RecordStart(ctx)
	case "stop":
		state, err = c.RecordStop(ctx)
	case "ack":
		state, err = c.RecordAck(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown record subcommand: %s\n", subcmd)
		os.Exit(1)
	}
	fatalOnError(err)
	fmt.Printf("Recording: %s\n", state)
}

func cmdEvents(c *client.Client, jsonOut bool, prefix string) {
	ctx := context.Background()
	events, cancel, err := c.Events(ctx, prefix)
	fatalOnError(err)
	defer cancel()

	for env := range events {
		if jsonOut {
			outputJSON(env)
			continue
		}
		ts := time.UnixMilli(env.OccurredAtUnixMs).Format("15:04:05")
		fmt.Printf("%s %s\n", ts, env.Kind)
	}
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func fatalOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
