package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var execFile string

var execCmd = &cobra.Command{
	Use:   "exec [sql]",
	Short: "Execute one SQL statement and print its result",
	RunE: func(cmd *cobra.Command, args []string) error {
		sql, err := execSQLSource(args)
		if err != nil {
			return err
		}

		sess, closeStore, err := openSession()
		if err != nil {
			return err
		}
		defer closeStore()
		defer sess.Close(cmdContext())

		res, err := sess.Query(cmdContext(), sql)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"columns":  res.Columns,
				"rows":     resultRows(res),
				"affected": res.Affected,
				"explain":  res.Explain,
			})
		}
		printResultPlain(res)
		return nil
	},
}

func init() {
	execCmd.Flags().StringVarP(&execFile, "file", "f", "", "read the statement from a file instead of an argument")
}

func execSQLSource(args []string) (string, error) {
	if execFile != "" {
		data, err := os.ReadFile(execFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", execFile, err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("exec: provide a SQL statement or --file")
	}
	return strings.Join(args, " "), nil
}
