package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/unidrive/unidrive/internal/item"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if flagQuiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

// printTable renders an aligned table with a header row.
func printTable(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// printItems renders an aggregated listing as a table on stdout.
func printItems(items []item.Item) {
	rows := make([][]string, 0, len(items))

	for _, it := range items {
		rows = append(rows, []string{
			kindDisplay(it),
			it.Name,
			sizeDisplay(it),
			it.ModifiedDisplay(),
			string(it.Service),
			accountDisplay(it),
		})
	}

	printTable(os.Stdout, []string{"TYPE", "NAME", "SIZE", "MODIFIED", "SERVICE", "ACCOUNT"}, rows)
}

func kindDisplay(it item.Item) string {
	if it.IsFolder() {
		return "dir"
	}

	return "file"
}

// sizeDisplay renders the item size in binary units, or a child count
// for folders that report one.
func sizeDisplay(it item.Item) string {
	if it.IsFolder() {
		if it.ChildCount == item.ChildCountUnknown {
			return "-"
		}

		return strconv.Itoa(it.ChildCount) + " items"
	}

	if it.SizeKB <= 0 {
		return "0 B"
	}

	return humanize.IBytes(uint64(it.SizeKB) * 1024)
}

// accountDisplay prefers the annotated display name over the raw ID.
func accountDisplay(it item.Item) string {
	if it.AccountName != "" {
		return it.AccountName
	}

	return it.Account
}
