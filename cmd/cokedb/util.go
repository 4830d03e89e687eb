package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/untoldecay/cokedb/catalog"
	"github.com/untoldecay/cokedb/session"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resultRows renders a session.Result's rows as [][]string for either a
// lipgloss table (interactive) or a plain println fallback (piped).
func resultRows(res *session.Result) [][]string {
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = rowStrings(row)
	}
	return rows
}

func rowStrings(row catalog.Row) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = v.String()
	}
	return out
}

func printResultPlain(res *session.Result) {
	if res.Explain != "" {
		fmt.Println(res.Explain)
		return
	}
	if res.Columns != nil {
		fmt.Println(joinTabs(res.Columns))
		for _, row := range resultRows(res) {
			fmt.Println(joinTabs(row))
		}
		return
	}
	fmt.Printf("OK, %d row(s) affected\n", res.Affected)
}

func joinTabs(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += "\t"
		}
		out += f
	}
	return out
}
