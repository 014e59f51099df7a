package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ragmesh"
	"github.com/hupe1980/ragmesh/session"
)

var chatStream bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts an interactive conversation. Type "exit" or send EOF to quit,
"reset" to start the session over.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "print the answer while it is generated")
	rootCmd.AddCommand(chatCmd, askCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Agent.Stream = cfg.Agent.Stream || chatStream

	out := cmd.OutOrStdout()
	mesh, err := newMesh(cfg, func(o *ragmesh.Options) {
		o.Stream = cfg.Agent.Stream
		o.OnPartial = func(_, delta string) { fmt.Fprint(out, delta) }
	})
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer mesh.Close()

	ctx := commandContext(cmd)
	sess, err := mesh.Session(sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, lastText(sess))

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\n> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}

		prompt := strings.TrimSpace(in.Text())
		switch prompt {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			if sess, err = mesh.ResetSession(sessionID); err != nil {
				return err
			}
			fmt.Fprintln(out, lastText(sess))
			continue
		}

		answer, err := sess.Post(ctx, prompt)
		var emptyErr *session.EmptyResponseError
		switch {
		case errors.As(err, &emptyErr):
			fmt.Fprintln(out, "(no answer, please rephrase)")
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		case cfg.Agent.Stream:
			fmt.Fprintln(out)
		default:
			fmt.Fprintln(out, answer)
		}
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mesh, err := newMesh(cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer mesh.Close()

	answer, err := mesh.Post(commandContext(cmd), sessionID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func lastText(sess *session.Session) string {
	turns := sess.History()
	if len(turns) > 0 {
		return turns[len(turns)-1].Text()
	}
	return ""
}
