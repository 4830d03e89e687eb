package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/untoldecay/cokedb/session"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive SQL session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, closeStore, err := openSession()
		if err != nil {
			return err
		}
		defer closeStore()
		return runREPL(sess)
	},
}

// runREPL drives an interactive loop over sess. A SIGINT rolls back any
// open transaction rather than killing the process outright, since a
// dropped transaction handle is treated as an implicit rollback.
func runREPL(sess *session.Session) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for range sigCh {
			if sess.InTxn() {
				sess.Rollback(ctx)
				fmt.Fprintln(os.Stderr, "\ninterrupted: rolled back open transaction")
			} else {
				cancel()
			}
		}
	}()

	prompt := promptStyle(interactive)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if interactive {
			fmt.Print(prompt.Render(replPromptText(sess)))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if strings.HasPrefix(strings.ToUpper(line), "DROP TABLE") && interactive {
			confirmed, err := confirmDrop(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if !confirmed {
				continue
			}
		}
		runREPLStatement(ctx, sess, line, interactive)
	}
	return sess.Close(ctx)
}

func runREPLStatement(ctx context.Context, sess *session.Session, line string, interactive bool) {
	res, err := sess.Query(ctx, line)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle(interactive).Render(err.Error()))
		return
	}
	if res.Explain != "" && interactive {
		rendered, rerr := glamour.Render("```\n"+res.Explain+"\n```", "dark")
		if rerr == nil {
			fmt.Print(rendered)
			return
		}
	}
	if interactive && res.Columns != nil {
		printResultTable(res)
		return
	}
	printResultPlain(res)
}

// printResultTable renders a row set with lipgloss, truncating long cell
// values so the table fits the controlling terminal's width.
func printResultTable(res *session.Result) {
	budget := terminalWidth()
	cell := lipgloss.NewStyle().MaxWidth(budget / max(1, len(res.Columns)))
	header := lipgloss.NewStyle().Bold(true)

	row := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		row[i] = header.Render(cell.Render(c))
	}
	fmt.Println(joinTabs(row))
	for _, r := range resultRows(res) {
		for i, v := range r {
			row[i] = cell.Render(v)
		}
		fmt.Println(joinTabs(row))
	}
}

func replPromptText(sess *session.Session) string {
	if sess.InTxn() {
		return "cokedb*> "
	}
	return "cokedb> "
}

func confirmDrop(stmt string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Run %q?", stmt)).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).Run()
	return ok, err
}

func promptStyle(interactive bool) lipgloss.Style {
	if !interactive || !hasColor() {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
}

func errorStyle(interactive bool) lipgloss.Style {
	if !interactive || !hasColor() {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
}

func hasColor() bool {
	return termenv.ColorProfile() != termenv.Ascii
}

// terminalWidth reports the controlling terminal's column width, used to
// decide when a result set is wide enough to need elision. Falls back to
// 80 when stdout isn't a real terminal (piped exec output, tests).
func terminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 80
	}
	return int(ws.Col)
}
