package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"softphone/internal/dialer"
)

// Interactive terminal frontend for the dialer client. Commands mirror
// the on-screen keypad: type digits to build a number, then "dial".
func main() {
	var (
		apiURL   = flag.String("api", envOr("DIALER_API_URL", "http://localhost:8080"), "api base url")
		wsURL    = flag.String("ws", envOr("DIALER_WS_URL", "ws://localhost:8080/ws"), "websocket relay url")
		username = flag.String("user", os.Getenv("DIALER_USERNAME"), "login username")
		password = flag.String("pass", os.Getenv("DIALER_PASSWORD"), "login password")
		from     = flag.String("from", os.Getenv("DIALER_FROM_NUMBER"), "caller id number")
	)
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "username and password are required (-user/-pass or DIALER_USERNAME/DIALER_PASSWORD)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	login, err := dialer.NewAPIClient(*apiURL).Login(ctx, *username, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}

	client := dialer.NewClient(dialer.Config{
		APIBaseURL: *apiURL,
		WSURL:      *wsURL,
		UserID:     login.UserID,
		Token:      login.AccessToken,
		FromNumber: *from,
	})
	defer client.Close()

	client.OnChange(printState)
	client.OnTransportStatus(func(s dialer.ConnStatus) {
		fmt.Printf("-- connection: %s\n", s)
	})

	client.Start(ctx)
	fmt.Printf("logged in as %s (%s)\n", *username, login.UserID)
	fmt.Println("commands: <digits> dial answer decline hangup hold mute transfer <number> clear reconnect quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		if err := runCommand(ctx, client, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func runCommand(ctx context.Context, client *dialer.Client, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "dial":
		number := client.State().DialedNumber
		if len(fields) > 1 {
			number = fields[1]
		}
		if number == "" {
			return fmt.Errorf("no number entered")
		}
		_, err := client.Dial(ctx, number)
		return err
	case "answer":
		_, err := client.Answer(ctx)
		return err
	case "decline":
		return client.Decline(ctx)
	case "hangup":
		return client.Hangup(ctx)
	case "hold":
		return client.ToggleHold(ctx)
	case "mute":
		return client.ToggleMute(ctx)
	case "transfer":
		if len(fields) < 2 {
			return fmt.Errorf("usage: transfer <number>")
		}
		return client.Transfer(ctx, fields[1])
	case "clear":
		client.ClearDialedNumber()
		return nil
	case "del":
		client.DeleteDigit()
		return nil
	case "reconnect":
		client.Reconnect(ctx)
		return nil
	default:
		// Anything made of keypad characters feeds the number buffer.
		for _, r := range fields[0] {
			if !strings.ContainsRune("0123456789*#+", r) {
				return fmt.Errorf("unknown command %q", fields[0])
			}
		}
		for _, r := range fields[0] {
			client.PressDigit(string(r))
		}
		return nil
	}
}

func printState(s dialer.State) {
	switch {
	case s.IncomingCall != nil:
		fmt.Printf("\n-- incoming call from %s (answer/decline)\n", s.IncomingCall.FromNumber)
	case s.IsInCall && s.ActiveCall != nil:
		flags := ""
		if s.IsOnHold {
			flags += " [hold]"
		}
		if s.IsMuted {
			flags += " [muted]"
		}
		fmt.Printf("\n-- in call with %s %02d:%02d%s\n",
			s.ActiveCall.ToNumber, s.CallDuration/60, s.CallDuration%60, flags)
	case s.ActiveCall != nil:
		fmt.Printf("\n-- calling %s...\n", s.ActiveCall.ToNumber)
	case s.DialedNumber != "":
		fmt.Printf("\n-- number: %s\n", s.DialedNumber)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
