package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts drives cmd/cokedb end to end the way a CLI-shaped repo
// exercises its own binary rather than only unit-testing its libraries:
// each testdata/*.txt file is a transcript of cokedb invocations and their
// expected stdout. The "cokedb" script command runs the root cobra command
// in-process (capturing its output) instead of shelling out to a built
// binary, so these tests don't depend on a prior `go build`.
func TestScripts(t *testing.T) {
	engine := script.NewEngine()
	engine.Cmds["cokedb"] = scriptCokedbCmd()

	ctx := context.Background()
	scripttest.Test(t, ctx, engine, nil, "testdata/*.txt")
}

func scriptCokedbCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run the cokedb CLI in-process",
			Args:    "args...",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			var out, errOut bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&errOut)
			rootCmd.SetArgs(args)
			// The subcommands print through os.Stdout, so swap it for a
			// pipe while the command runs.
			r, w, err := os.Pipe()
			if err != nil {
				return nil, err
			}
			oldStdout := os.Stdout
			os.Stdout = w
			copied := make(chan struct{})
			go func() {
				_, _ = io.Copy(&out, r)
				close(copied)
			}()
			runErr := rootCmd.Execute()
			os.Stdout = oldStdout
			w.Close()
			<-copied
			return func(*script.State) (string, string, error) {
				return out.String(), errOut.String(), runErr
			}, nil
		},
	)
}
