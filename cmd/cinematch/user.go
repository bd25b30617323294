package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/history"
)

var userPassword string

func init() {
	userRegisterCmd.Flags().StringVar(&userPassword, "password", "", "Password for the new user (default $CINEMATCH_PASSWORD)")
	userCmd.AddCommand(userRegisterCmd)
	rootCmd.AddCommand(userCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userRegisterCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create a user account",
	Long: `Create a user whose searches can be recorded in history.

The password is taken from --password or the CINEMATCH_PASSWORD environment
variable and stored as a bcrypt hash.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserRegister,
}

func runUserRegister(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenHistory(cfg)
	defer db.Close()

	err := db.RegisterUser(cmd.Context(), args[0], passwordOrEnv(userPassword))
	switch {
	case errors.Is(err, history.ErrUserExists):
		exitWithError(ExitError, "username %q already exists", args[0])
	case errors.Is(err, history.ErrInvalidCredentials):
		exitWithError(ExitError, "username and password are required (use --password or CINEMATCH_PASSWORD)")
	case err != nil:
		exitWithError(ExitError, "registering user: %v", err)
	}

	if humanOutput {
		outputHuman("Account created for %s.\n", args[0])
		return nil
	}
	return outputJSON(StatusResponse{Status: "created"})
}

func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("CINEMATCH_PASSWORD")
}

// mustAuthenticate verifies a user's password, exits on failure.
func mustAuthenticate(ctx context.Context, a *app, username, password string) {
	ok, err := a.history.IsValidUser(ctx, username, passwordOrEnv(password))
	if err != nil {
		exitWithError(ExitError, "checking credentials: %v", err)
	}
	if !ok {
		exitWithError(ExitAuthError, "invalid username or password")
	}
}
