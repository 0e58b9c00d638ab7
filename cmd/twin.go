package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/twinly/internal/app"
	"github.com/abhisek/twinly/internal/llm"
	"github.com/abhisek/twinly/internal/persona"
	"github.com/abhisek/twinly/internal/session"
)

// identity reads --id, falling back to TWINLY_ID.
func identity(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = os.Getenv("TWINLY_ID")
	}
	if id == "" {
		return "", errors.New("no identity: pass --id or set TWINLY_ID")
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", id, err)
	}
	return u.String(), nil
}

// twinRunE wraps a command that acts on one identity.
func twinRunE(fn func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := identity(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return fn(ctx, cmd, a, id, args)
		})
	}
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an identity or refresh an existing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fresh, _ := cmd.Flags().GetBool("new"); fresh {
			if err := cmd.Flags().Set("id", uuid.NewString()); err != nil {
				return err
			}
		}
		return twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, _ []string) error {
			out, err := a.Service.Initialize(ctx, id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:    %s\n", out.ID)
			fmt.Fprintf(w, "Name:  %s\n", out.Name)
			if out.Created {
				fmt.Fprintln(w, "\nNew identity created. Pass --id to the other commands.")
			}
			return nil
		})(cmd, args)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Generate a question, replacing any pending one",
	RunE: twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, _ []string) error {
		q, err := a.Service.RequestQuestion(ctx, id)
		if err != nil {
			return err
		}
		printQuestion(cmd.OutOrStdout(), q)
		return nil
	}),
}

var answerCmd = &cobra.Command{
	Use:   "answer <n>",
	Short: "Answer the pending question (1-based choice)",
	Args:  cobra.ExactArgs(1),
	RunE: twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid choice %q: %w", args[0], err)
		}
		out, err := a.Service.SubmitAnswer(ctx, id, n-1)
		w := cmd.OutOrStdout()

		var nq *session.NextQuestionError
		if errors.As(err, &nq) {
			printVerdict(w, nq.Correct, nq.Persona)
			return err
		}
		if err != nil {
			return err
		}
		printVerdict(w, out.Correct, out.Persona)
		fmt.Fprintln(w)
		printQuestion(w, &out.QuestionView)
		return nil
	}),
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show what has been learned about an identity",
	RunE: twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, _ []string) error {
		p, err := a.Service.Profile(ctx, id)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Name:        %s\n", p.Name)
		fmt.Fprintf(w, "Answered:    %d (%d predicted)\n", p.Asked, p.Correct)
		fmt.Fprintf(w, "Confidence:  %s\n", p.Confidence)
		fmt.Fprintf(w, "Pending:     %v\n", p.Pending)
		if p.Guidance != "" {
			fmt.Fprintf(w, "Guidance:    %s\n", p.Guidance)
		}
		if !p.LastUsed.IsZero() {
			fmt.Fprintf(w, "Last used:   %s\n", p.LastUsed.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprintln(w, "PERSONA")
		fmt.Fprintln(w, strings.Repeat("─", 60))
		for _, line := range persona.Sentences(p.Persona) {
			fmt.Fprintf(w, "• %s\n", line)
		}
		return nil
	}),
}

// textCmd builds a command that replaces one free-text field.
func textCmd(use, short string, set func(a *app.App) func(ctx context.Context, id, text string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <text>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, args []string) error {
			if err := set(a)(ctx, id, strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Updated.")
			return nil
		}),
	}
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget everything learned about an identity",
	RunE: twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, _ []string) error {
		if err := a.Service.Reset(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Persona reset.")
		return nil
	}),
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the persona (one message per line, empty line or EOF to quit)",
	RunE: twinRunE(func(ctx context.Context, cmd *cobra.Command, a *app.App, id string, _ []string) error {
		return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, msgs []llm.Message) (string, error) {
			return a.Service.Chat(ctx, id, msgs)
		})
	}),
}

// chatLoop reads user turns from in and keeps the whole conversation.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, send func(context.Context, []llm.Message) (string, error)) error {
	var msgs []llm.Message
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			return nil
		}

		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: line})
		reply, err := send(ctx, msgs)
		if err != nil {
			return err
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply})
		fmt.Fprintln(out, reply)
	}
}

func printQuestion(w io.Writer, q *session.QuestionView) {
	fmt.Fprintf(w, "[%s] %s\n", q.Category, q.Question)
	for i, ans := range q.Answers {
		fmt.Fprintf(w, "  %d) %s\n", i+1, ans)
	}
	fmt.Fprintf(w, "Confidence: %s\n", q.Confidence)
}

func printVerdict(w io.Writer, correct bool, text string) {
	if correct {
		fmt.Fprintln(w, "✓ The persona predicted that.")
	} else {
		fmt.Fprintln(w, "✗ The persona got that wrong.")
	}
	fmt.Fprintf(w, "Persona: %s\n", text)
}

func addTwinCommands(root *cobra.Command) {
	initCmd.Flags().Bool("new", false, "Generate a fresh identity")

	guidanceCmd := textCmd("guidance", "Set steering notes for question generation",
		func(a *app.App) func(context.Context, string, string) error { return a.Service.SetGuidance })
	nameCmd := textCmd("name", "Rename the twin",
		func(a *app.App) func(context.Context, string, string) error { return a.Service.SetName })
	personaCmd := textCmd("persona", "Replace the persona text",
		func(a *app.App) func(context.Context, string, string) error { return a.Service.SetPersona })

	for _, c := range []*cobra.Command{initCmd, askCmd, answerCmd, profileCmd, guidanceCmd, nameCmd, personaCmd, resetCmd, chatCmd} {
		c.Flags().String("id", "", "Identity UUID (defaults to TWINLY_ID)")
		root.AddCommand(c)
	}
}
