package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/taborda-io/taborda/internal/config"
	"github.com/taborda-io/taborda/internal/dialog"
	"github.com/taborda-io/taborda/internal/ticket"
	"github.com/taborda-io/taborda/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "chat":
		cmdChat()
	case "health":
		cmdHealth()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: tabordactl tickets <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: tabordactl tickets show <number>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "conversations":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: tabordactl conversations <list|history>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdConversationsList()
		case "history":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: tabordactl conversations history <user>")
				os.Exit(1)
			}
			cmdConversationsHistory(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown conversations subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "stats":
		cmdStats()
	case "reap":
		cmdReap()
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: tabordactl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- chat command ---

// cmdChat runs the intake dialogue locally without a daemon. Nothing is
// persisted; finalizing prints a sample ticket number.
func cmdChat() {
	engine := dialog.New(nil)

	state := protocol.StateInitial
	fields := map[string]string{}

	fmt.Println("tabordactl chat (type 'quit' to exit)")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			break
		}

		res := engine.Decide(state, fields, line)
		for _, reply := range res.Replies {
			fmt.Println(reply)
		}
		if res.Effect == dialog.EffectFinalize {
			fmt.Println(dialog.TicketRegisteredText(ticket.NextNumber(time.Now())))
		}
		fmt.Println()

		state = res.Next
		fields = res.Fields
	}
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (completed|incomplete)")
	user := fs.String("user", "", "Filter by user ID")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *status != "" {
		query += "&status=" + *status
	}
	if *user != "" {
		query += "&user=" + *user
	}

	body, err := apiGet("/api/tickets" + query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var tickets []map[string]any
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		fmt.Printf("%-22s %-11s %-16s %s\n", t["ticket_number"], t["status"], t["user_id"], t["problem_type"])
	}
}

func cmdTicketsShow(number string) {
	body, err := apiGet("/api/tickets/" + number)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConversationsList() {
	body, err := apiGet("/api/conversations")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var convs []map[string]any
	json.Unmarshal(body, &convs)
	for _, c := range convs {
		fmt.Printf("%-16s %-28s %s\n", c["user_id"], c["state"], c["updated_at"])
	}
}

func cmdConversationsHistory(user string) {
	body, err := apiGet("/api/conversations/" + user + "/history")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var entries []map[string]any
	json.Unmarshal(body, &entries)
	for _, e := range entries {
		fmt.Printf("%-8s %s\n", e["direction"], e["body"])
	}
}

func cmdStats() {
	body, err := apiGet("/api/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var stats map[string]any
	json.Unmarshal(body, &stats)
	fmt.Printf("total tickets:        %v\n", stats["total_tickets"])
	fmt.Printf("tickets today:        %v\n", stats["tickets_today"])
	fmt.Printf("incomplete tickets:   %v\n", stats["incomplete_tickets"])
	fmt.Printf("active conversations: %v\n", stats["active_conversations"])
}

func cmdReap() {
	body, err := apiPost("/api/reap")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdConfigValidate(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings() {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path)
}

func apiPost(path string) ([]byte, error) {
	return apiDo("POST", path)
}

func apiDo(method, path string) ([]byte, error) {
	base := envOr("TABORDA_API_URL", "http://localhost:8080")
	url := base + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("TABORDA_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("tabordactl - intake bot management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat                          Run the intake dialogue locally")
	fmt.Println("  health                        Check daemon health")
	fmt.Println("  tickets list                  List tickets (--status, --user, --limit)")
	fmt.Println("  tickets show <number>         Show ticket details")
	fmt.Println("  conversations list            List conversation records")
	fmt.Println("  conversations history <user>  Show a user's message history")
	fmt.Println("  stats                         Show ticket and conversation counters")
	fmt.Println("  reap                          Trigger a stale-conversation sweep")
	fmt.Println("  config validate <path>        Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TABORDA_API_URL  Daemon URL (default: http://localhost:8080)")
	fmt.Println("  TABORDA_API_KEY  API key for authentication")
}
