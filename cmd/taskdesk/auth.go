package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// prompter reads answers from the terminal
type prompter struct {
	rl *readline.Instance
}

func newPrompter() (*prompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &prompter{rl: rl}, nil
}

func (p *prompter) Close() error {
	return p.rl.Close()
}

// Ask returns the trimmed answer, or def when the answer is empty
func (p *prompter) Ask(label, def string) (string, error) {
	prompt := color.New(color.FgCyan).Sprint(label + ": ")
	p.rl.SetPrompt(prompt)
	line, err := p.rl.Readline()
	if err != nil {
		return "", promptError(err)
	}
	if line = strings.TrimSpace(line); line == "" {
		return def, nil
	}
	return line, nil
}

// Password reads a line without echo
func (p *prompter) Password(label string) (string, error) {
	pw, err := p.rl.ReadPassword(color.New(color.FgCyan).Sprint(label + ": "))
	if err != nil {
		return "", promptError(err)
	}
	return string(pw), nil
}

func promptError(err error) error {
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return errors.New("cancelled")
	}
	return err
}

func newSignUpCmd() *cobra.Command {
	var email, firstName, lastName string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := newPrompter()
			if err != nil {
				return err
			}
			defer p.Close()

			if email == "" {
				if email, err = p.Ask("Email", ""); err != nil {
					return err
				}
			}
			if firstName == "" {
				if firstName, err = p.Ask("First name", ""); err != nil {
					return err
				}
			}
			if lastName == "" {
				if lastName, err = p.Ask("Last name", ""); err != nil {
					return err
				}
			}
			password, err := p.Password("Password")
			if err != nil {
				return err
			}
			confirm, err := p.Password("Confirm password")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			sess, err := rt.identity.SignUp(ctx, email, password, firstName, lastName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Signed up as %s\n", color.GreenString("✓"), sess.Principal.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := newPrompter()
			if err != nil {
				return err
			}
			defer p.Close()

			if email == "" {
				if email, err = p.Ask("Email", ""); err != nil {
					return err
				}
			}
			password, err := p.Password("Password")
			if err != nil {
				return err
			}

			sess, err := rt.identity.SignIn(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Signed in as %s\n", color.GreenString("✓"), sess.Principal.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.identity.CurrentSession(ctx); err != nil {
				return err
			}
			if err := rt.identity.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Signed out\n", color.GreenString("✓"))
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			sess, err := rt.identity.CurrentSession(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sess == nil {
				fmt.Fprintln(out, color.YellowString("Not signed in"))
				return nil
			}
			p := sess.Principal
			name := strings.TrimSpace(p.FirstName + " " + p.LastName)
			fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint(p.Email), name)
			fmt.Fprintf(out, "%s %s\n", color.HiBlackString("id:"), p.ID)
			fmt.Fprintf(out, "%s %s\n", color.HiBlackString("since:"), sess.CreatedAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}
