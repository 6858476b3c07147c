package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/lessonlog/internal/dashboard"
	"github.com/pbaille/lessonlog/internal/domain"
	"github.com/pbaille/lessonlog/internal/extract"
	"github.com/pbaille/lessonlog/internal/httpx"
	"github.com/pbaille/lessonlog/internal/journal"
	"github.com/pbaille/lessonlog/internal/store"
)

func addCmd() *cobra.Command {
	var writer, date, pageURL string

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add a new entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if pageURL == "" && extract.IsURL(text) {
				pageURL, text = text, ""
			}
			if pageURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Fetching %s... ", pageURL)
				page, err := extract.Fetch(cmd.Context(), httpx.ExternalHTTPClient(), pageURL)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "failed")
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "done")
				text = strings.TrimSpace(text + "\n\n" + page)
			}

			d, err := domain.ParseDate(date)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entry, outcome, err := a.svc.Create(cmd.Context(), domain.Draft{Date: d, Writer: writer, Text: text})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added entry: %s\n", shortID(entry.ID))
			printOutcome(cmd.OutOrStdout(), entry, outcome)
			return nil
		},
	}

	cmd.Flags().StringVarP(&writer, "writer", "w", os.Getenv("USER"), "who learned the lesson")
	cmd.Flags().StringVarP(&date, "date", "d", "", "entry date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&pageURL, "url", "", "use the text of this page")
	return cmd
}

func printOutcome(w io.Writer, e domain.Entry, o journal.Outcome) {
	fmt.Fprintf(w, "Text:       %s\n", truncate(e.Text, 80))
	fmt.Fprintf(w, "Keywords:   %s\n", strings.Join(e.Keywords, ", "))
	fmt.Fprintf(w, "Categories: %s\n", strings.Join(e.Categories, ", "))
	if o.Degraded() {
		fmt.Fprintf(w, "(classification failed, fallback tags saved: %v)\n", o.Err)
	} else if o.Model != "" {
		fmt.Fprintf(w, "(classified by %s)\n", o.Model)
	}
}

// filterFlags binds the list/stats filter options to cmd
func filterFlags(cmd *cobra.Command, f *filterOpts) {
	cmd.Flags().StringSliceVarP(&f.categories, "category", "c", nil, "only these categories")
	cmd.Flags().StringSliceVarP(&f.keywords, "keyword", "k", nil, "only these keywords")
	cmd.Flags().StringVar(&f.writer, "writer", "", "only this writer")
	cmd.Flags().StringVar(&f.from, "from", "", "first date, inclusive")
	cmd.Flags().StringVar(&f.to, "to", "", "last date, inclusive")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "text contains")
}

type filterOpts struct {
	categories, keywords []string
	writer, from, to     string
	query                string
}

func (f filterOpts) filter() (domain.Filter, error) {
	from, err := domain.ParseDate(f.from)
	if err != nil {
		return domain.Filter{}, fmt.Errorf("--from: %w", err)
	}
	to, err := domain.ParseDate(f.to)
	if err != nil {
		return domain.Filter{}, fmt.Errorf("--to: %w", err)
	}
	return domain.Filter{
		Categories: f.categories,
		Keywords:   f.keywords,
		Writer:     f.writer,
		From:       from,
		To:         to,
		Query:      f.query,
	}, nil
}

// listEntries loads matching entries. A read failure is printed as a warning
// and yields no entries.
func listEntries(cmd *cobra.Command, a *app, f filterOpts) ([]domain.Entry, error) {
	filter, err := f.filter()
	if err != nil {
		return nil, err
	}
	entries, err := a.svc.List(cmd.Context(), filter)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return entries, nil
}

func listCmd() *cobra.Command {
	var limit int
	var f filterOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := listEntries(cmd, a, f)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entries yet. Use 'lessonlog add' to create one.")
				return nil
			}

			if limit > 0 && limit < len(entries) {
				entries = entries[:limit]
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %-10s  %s  [%s]\n",
					shortID(e.ID), e.Date, truncate(e.Writer, 10), truncate(e.Text, 50), strings.Join(e.Categories, ", "))
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")
	filterFlags(cmd, &f)
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show entry details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.svc.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:         %s\n", entry.ID)
			fmt.Fprintf(w, "Date:       %s\n", entry.Date)
			fmt.Fprintf(w, "Writer:     %s\n", entry.Writer)
			fmt.Fprintf(w, "Keywords:   %s\n", strings.Join(entry.Keywords, ", "))
			fmt.Fprintf(w, "Categories: %s\n", strings.Join(entry.Categories, ", "))
			fmt.Fprintf(w, "Text:\n%s\n", entry.Text)
			return nil
		},
	}
}

func editCmd() *cobra.Command {
	var writer, date, text string

	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Edit an entry and classify it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			existing, err := a.svc.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			d := domain.Draft{Date: existing.Date, Writer: existing.Writer, Text: existing.Text}
			if cmd.Flags().Changed("writer") {
				d.Writer = writer
			}
			if cmd.Flags().Changed("text") {
				d.Text = text
			}
			if cmd.Flags().Changed("date") {
				if d.Date, err = domain.ParseDate(date); err != nil {
					return err
				}
			}

			entry, outcome, err := a.svc.Update(cmd.Context(), existing.ID, d)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated entry: %s\n", shortID(entry.ID))
			printOutcome(cmd.OutOrStdout(), entry, outcome)
			return nil
		},
	}

	cmd.Flags().StringVarP(&writer, "writer", "w", "", "new writer")
	cmd.Flags().StringVarP(&date, "date", "d", "", "new date")
	cmd.Flags().StringVarP(&text, "text", "t", "", "new text")
	return cmd
}

func deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.svc.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete %s (%s)? [y/N] ", shortID(entry.ID), truncate(entry.Text, 40))
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			if err := a.svc.Delete(cmd.Context(), entry.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry: %s\n", shortID(entry.ID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func statsCmd() *cobra.Command {
	var top, width int
	var f filterOpts

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show category, keyword, writer and month charts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := listEntries(cmd, a, f)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			summary := dashboard.Summarize(entries)
			fmt.Fprintf(w, "%d entries by %d writers\n\n", summary.Total, summary.Writers)

			keywords := summary.Keywords
			if top > 0 && len(keywords) > top {
				keywords = keywords[:top]
			}
			charts := []struct {
				title  string
				counts []dashboard.Count
			}{
				{"Categories", dashboard.Categories(entries)},
				{"Keywords", keywords},
				{"Writers", summary.ByWriter},
				{"Months", summary.ByMonth},
			}
			for _, c := range charts {
				if err := dashboard.RenderBars(w, c.title, c.counts, width); err != nil {
					return err
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of keywords to chart (0 for all)")
	cmd.Flags().IntVar(&width, "width", 40, "width of the longest bar")
	filterFlags(cmd, &f)
	return cmd
}

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List categories with their keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := listEntries(cmd, a, filterOpts{})
			if err != nil {
				return err
			}

			nodes := dashboard.Treemap(entries)
			if len(nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tags yet. Tags emerge from entry classification.")
				return nil
			}

			for _, n := range nodes {
				indent := ""
				if n.Parent != "" {
					indent = "  "
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s (%d)\n", indent, n.Label, n.Value)
			}
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Append entries from a CSV sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			rows, err := store.ReadCSV(cmd.Context(), f)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.svc.Import(cmd.Context(), rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rows\n", added, len(rows))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.csv]",
		Short: "Write every entry to a CSV sheet (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.svc.Export(cmd.Context())
			if err != nil {
				return err
			}

			if args[0] == "-" {
				return store.WriteCSV(cmd.Context(), cmd.OutOrStdout(), rows)
			}
			if err := store.NewCSV(args[0]).Write(cmd.Context(), rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(rows), args[0])
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
