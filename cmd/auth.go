package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joescharf/issueboard/internal/output"
)

var (
	authEmail    string
	authPassword string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign up, sign in and out",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authWhoamiRun()
	},
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authSignupRun(cmd.Context())
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authLoginRun(cmd.Context())
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authLogoutRun()
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authWhoamiRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{authSignupCmd, authLoginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Account email (prompted if omitted)")
		c.Flags().StringVar(&authPassword, "password", "", "Account password (prompted if omitted)")
	}

	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
	rootCmd.AddCommand(authCmd)
}

// readPassword reads a password without echo on a terminal, falling back to
// a plain prompt when stdin is not one.
func readPassword(label string) (string, error) {
	if f, ok := ui.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(ui.Out, "%s: ", label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(ui.Out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return ui.Prompt(label)
}

func credentials() (string, string, error) {
	email, password := authEmail, authPassword
	var err error
	if email == "" {
		if email, err = ui.Prompt("Email"); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = readPassword("Password"); err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

func authSignupRun(ctx context.Context) error {
	sess, err := getSession()
	if err != nil {
		return err
	}
	email, password, err := credentials()
	if err != nil {
		return err
	}
	user, err := sess.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	ui.Success("Account created. Signed in as %s", output.Cyan(user.Email))
	return nil
}

func authLoginRun(ctx context.Context) error {
	sess, err := getSession()
	if err != nil {
		return err
	}
	email, password, err := credentials()
	if err != nil {
		return err
	}
	user, err := sess.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	ui.Success("Signed in as %s", output.Cyan(user.Email))
	return nil
}

func authLogoutRun() error {
	sess, err := getSession()
	if err != nil {
		return err
	}
	if sess.CurrentUser() == nil {
		ui.Info("Not signed in.")
		return sess.SignOut()
	}
	if err := sess.SignOut(); err != nil {
		return err
	}
	ui.Success("Signed out")
	return nil
}

func authWhoamiRun() error {
	sess, err := getSession()
	if err != nil {
		return err
	}
	user := sess.CurrentUser()
	if user == nil {
		ui.Info("Not signed in. Run 'issueboard auth login' or 'issueboard auth signup'.")
		return nil
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(user.Email), user.UID)
	return nil
}
