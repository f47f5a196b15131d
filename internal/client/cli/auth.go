package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notely/notely/internal/client/api"
)

func newSignupCmd(app func() *App) *cobra.Command {
	var req api.SignupRequest
	var code string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			ctx := cmd.Context()
			resp, err := a.client.RequestSignupOTP(ctx, req)
			if err != nil {
				return err
			}
			a.printOTPResponse(resp)
			return a.finishOTP(ctx, code, func(ctx context.Context, code string) (api.Session, error) {
				return a.client.VerifySignupOTP(ctx, req.Email, code)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.DOB, "dob", "", "date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&code, "otp", "", "one-time code; prompted for when empty")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSigninCmd(app func() *App) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			ctx := cmd.Context()
			resp, err := a.client.RequestSigninOTP(ctx, email)
			if err != nil {
				return err
			}
			a.printOTPResponse(resp)
			return a.finishOTP(ctx, code, func(ctx context.Context, code string) (api.Session, error) {
				return a.client.VerifySigninOTP(ctx, email, code)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&code, "otp", "", "one-time code; prompted for when empty")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *App) printOTPResponse(resp api.OTPResponse) {
	fmt.Fprintln(a.out, resp.Message)
	if resp.OTP != "" {
		fmt.Fprintf(a.out, "Development code: %s\n", resp.OTP)
	}
}

func (a *App) finishOTP(ctx context.Context, code string, verify func(context.Context, string) (api.Session, error)) error {
	if code == "" {
		var err error
		if code, err = promptCode(a.in, a.out); err != nil {
			return fmt.Errorf("read code: %w", err)
		}
	}
	session, err := verify(ctx, code)
	if err != nil {
		return err
	}
	if err := a.workspace.Login(ctx, session); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", session.User.Name, session.User.Email)
	return nil
}

func newLogoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if err := a.workspace.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			user, _ := a.workspace.User()
			fmt.Fprintf(a.out, "%s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
}

func newLoginCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Federated login",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "google",
		Short: "Print the URL that starts a Google login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			fmt.Fprintln(a.out, "Open this URL in a browser, then run `notes login complete <dashboard-url>`:")
			fmt.Fprintln(a.out, a.client.GoogleLoginURL())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "complete <dashboard-url>",
		Short: "Adopt the session from the URL the login redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			clean, err := a.workspace.AdoptRedirect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			user, ok := a.workspace.User()
			if !ok {
				if err := a.requireSession(cmd.Context()); err != nil {
					return errors.New("the URL carries no login result")
				}
				user, _ = a.workspace.User()
			}
			fmt.Fprintf(a.out, "Signed in as %s <%s>\n", user.Name, user.Email)
			a.logger.Debug("redirect adopted", "url", clean)
			return nil
		},
	})
	return cmd
}
