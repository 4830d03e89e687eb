package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the resolved configuration and engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, closeStore, err := openSession()
		if err != nil {
			return err
		}
		defer closeStore()
		defer sess.Close(cmdContext())

		st := sess.GetStatus()
		if jsonOutput {
			return printJSON(map[string]any{
				"session_id":     st.SessionID.String(),
				"engine_version": st.EngineVersion,
				"in_txn":         st.InTxn,
				"storage":        cfg.Storage,
				"started_at":     st.StartedAt,
			})
		}
		fmt.Println(st.String())
		fmt.Printf("storage: %s, log rotation threshold: %s\n",
			cfg.Storage, humanize.Bytes(uint64(maxSizeOr(cfg.LogMaxSize, 100))*1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func maxSizeOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
