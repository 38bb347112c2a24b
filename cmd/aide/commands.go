package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/aide/internal/config"
	"github.com/kalambet/aide/internal/record"
	"github.com/kalambet/aide/internal/schedule"
)

// listing mirrors the server's collection listing. Records stay raw so each
// kind can be rendered with its own type.
type listing struct {
	Kind    record.Kind       `json:"kind"`
	State   string            `json:"state"`
	Token   string            `json:"token"`
	Problem string            `json:"problem"`
	Records []json.RawMessage `json:"records"`
}

type importResult struct {
	Added   []record.CalendarEvent `json:"added"`
	Skipped []record.CalendarEvent `json:"skipped"`
}

type outcome struct {
	Kind    record.Kind            `json:"kind"`
	Events  []record.CalendarEvent `json:"events"`
	Finance *record.FinanceEntry   `json:"finance"`
	Note    *record.Note           `json:"note"`
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatEvent(e record.CalendarEvent) string {
	when := e.Start.String()
	if e.AllDay {
		when = e.Start.Time.Format(record.DateLayout)
	} else if e.End != nil {
		when += " → " + e.End.String()
	}
	line := fmt.Sprintf("%s  %s", colorize(colorCyan, when), e.Title)
	if e.Location != "" {
		line += " @ " + e.Location
	}
	return line
}

func formatEntry(f record.FinanceEntry) string {
	return fmt.Sprintf("%s  %s  %s [%s]", f.Date, signedAmount(f.Amount), f.Item, f.Category)
}

func formatNote(n record.Note) string {
	line := fmt.Sprintf("%s  %s", colorize(colorCyan, n.CreatedAt.String()), n.Content)
	if len(n.Tags) > 0 {
		line += colorize(colorYellow, " #"+strings.Join(n.Tags, " #"))
	}
	return line
}

// --- event ---

var eventCmd = &cobra.Command{
	Use:   "event <text>",
	Short: "Add calendar events described in free-form text",
	Long: `Add calendar events described in free-form text.

Examples:
  aide event "dentist next tuesday at 3pm"
  aide event "team offsite on friday, all day"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/events", map[string]string{"text": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var result struct {
			Events []record.CalendarEvent `json:"events"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added %d event(s)", len(result.Events))
		for _, e := range result.Events {
			fmt.Println("  " + formatEvent(e))
		}
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a schedule, skipping events already in the calendar",
	Long: `Import a schedule, skipping events already in the calendar.

Examples:
  aide import --text "Math Mon/Wed 9:00-10:30 in room 204"
  aide import --file ./timetable.pdf
  aide import --url https://example.edu/schedule.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		link, _ := cmd.Flags().GetString("url")

		req := map[string]any{}
		switch {
		case text != "":
			req["text"] = text
		case file != "":
			pages, err := readSchedule(file)
			if err != nil {
				return err
			}
			printStep("Read %d page(s) from %s", len(pages), file)
			req["pages"] = pages
		case link != "":
			req["url"] = link
		default:
			return fmt.Errorf("one of --text, --file, or --url is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/events/import", req)
		if err != nil {
			return err
		}
		var result importResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported %d event(s), skipped %d already present", len(result.Added), len(result.Skipped))
		for _, e := range result.Added {
			fmt.Println("  " + formatEvent(e))
		}
		return nil
	},
}

// readSchedule splits a local document into pages of text.
func readSchedule(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var contentType string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		contentType = "application/pdf"
	case ".html", ".htm":
		contentType = "text/html"
	}
	return schedule.Pages(contentType, data)
}

func init() {
	importCmd.Flags().String("text", "", "schedule text")
	importCmd.Flags().String("file", "", "PDF, HTML or text file")
	importCmd.Flags().String("url", "", "URL of a schedule document")
	importCmd.MarkFlagsMutuallyExclusive("text", "file", "url")
}

// --- expense ---

var expenseCmd = &cobra.Command{
	Use:   "expense <text>",
	Short: "Record an expense or income",
	Long: `Record an expense or income.

Examples:
  aide expense "lunch 12.50"
  aide expense "salary +3200 yesterday"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/finance", map[string]string{"text": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var entry record.FinanceEntry
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		printSuccess("Recorded %s", formatEntry(entry))
		return nil
	},
}

// --- note ---

var noteCmd = &cobra.Command{
	Use:   "note <content>",
	Short: "Save a note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetString("tags")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/notes", map[string]any{
			"content": strings.Join(args, " "),
			"tags":    record.SplitTags(tags),
		})
		if err != nil {
			return err
		}
		var n record.Note
		if err := decodeJSON(resp, &n); err != nil {
			return err
		}

		printSuccess("Saved note")
		fmt.Println("  " + formatNote(n))
		return nil
	},
}

func init() {
	noteCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List records of a kind (calendar, finance, note)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := record.ParseKind(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/collections/"+string(kind))
		if err != nil {
			return err
		}
		var l listing
		if err := decodeJSON(resp, &l); err != nil {
			return err
		}

		if asJSON {
			return printJSON(l)
		}
		if l.State == "malformed" {
			printWarning("%s collection is malformed and cannot be modified until it is repaired: %s", kind.Collection(), l.Problem)
		}
		if len(l.Records) == 0 {
			fmt.Println("No records.")
			return nil
		}
		for i, raw := range l.Records {
			line, err := formatRecord(kind, raw)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", colorize(colorBold, fmt.Sprintf("%3d", i)), line)
		}
		fmt.Fprintf(os.Stderr, "token: %s\n", l.Token)
		return nil
	},
}

func formatRecord(kind record.Kind, raw json.RawMessage) (string, error) {
	switch kind {
	case record.KindCalendar:
		var e record.CalendarEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", err
		}
		return formatEvent(e), nil
	case record.KindFinance:
		var f record.FinanceEntry
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", err
		}
		return formatEntry(f), nil
	case record.KindNote:
		var n record.Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return formatNote(n), nil
	}
	return string(raw), nil
}

func init() {
	listCmd.Flags().Bool("json", false, "print the raw listing as JSON")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <kind> <index>...",
	Short: "Delete records by their index in 'aide list'",
	Long: `Delete records by their index in 'aide list'.

Pass the token printed by 'aide list' to make sure the collection has not
changed since you looked at it.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := record.ParseKind(args[0])
		if err != nil {
			return err
		}
		indices := make([]int, 0, len(args)-1)
		for _, a := range args[1:] {
			i, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("invalid index %q", a)
			}
			indices = append(indices, i)
		}
		token, _ := cmd.Flags().GetString("token")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/collections/"+string(kind)+"/records", map[string]any{
			"indices": indices,
			"token":   token,
		})
		if err != nil {
			return err
		}
		var result struct {
			Deleted int `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %d record(s) from %s", result.Deleted, kind.Collection())
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("token", "", "collection token from 'aide list'")
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show finance totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/finance/summary")
		if err != nil {
			return err
		}
		var sum record.Summary
		if err := decodeJSON(resp, &sum); err != nil {
			return err
		}

		printStatus("Balance", "%s", signedAmount(sum.Balance))
		printStatus("Income", "%.2f", sum.Income)
		printStatus("Expense", "%.2f", sum.Expense)
		printStatus("Records", "%d", sum.Count)
		for _, c := range sum.ByCategory {
			fmt.Printf("  %-16s %10.2f\n", c.Category, c.Amount)
		}
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search notes by content or tag",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{"q": {strings.Join(args, " ")}}
		resp, err := client.get(cmd.Context(), "/notes/search?"+q.Encode())
		if err != nil {
			return err
		}
		var notes []record.Note
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}

		if len(notes) == 0 {
			fmt.Println("No notes found.")
			return nil
		}
		for _, n := range notes {
			fmt.Println(formatNote(n))
		}
		return nil
	},
}

// --- assist ---

var assistCmd = &cobra.Command{
	Use:   "assist <text>",
	Short: "Let the assistant decide whether text is an event, a transaction or a note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/assist", map[string]string{"text": strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var out outcome
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		switch {
		case out.Finance != nil:
			printSuccess("Recorded %s", formatEntry(*out.Finance))
		case out.Note != nil:
			printSuccess("Saved note")
			fmt.Println("  " + formatNote(*out.Note))
		default:
			printSuccess("Added %d event(s)", len(out.Events))
			for _, e := range out.Events {
				fmt.Println("  " + formatEvent(e))
			}
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
