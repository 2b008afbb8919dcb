package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/malbeclabs/mindlake/agent/pkg/pipeline"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question, or start an interactive session when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, os.Stderr)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			mem := pipeline.NewMemory(a.memoryPolicy())
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := a.pipeline.Run(ctx, mem, pipeline.PipelineRequest{Question: args[0]})
				if err != nil {
					return err
				}
				printResponse(out, resp)
				return nil
			}

			return repl(cmd.InOrStdin(), out, func(question string) error {
				resp, err := a.pipeline.Run(ctx, mem, pipeline.PipelineRequest{Question: question})
				if err != nil {
					return err
				}
				printResponse(out, resp)
				return ctx.Err()
			})
		},
	}
}

// repl reads one question per line until EOF or "exit".
func repl(in io.Reader, out io.Writer, answer func(string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := answer(line); err != nil {
			return err
		}
	}
}
