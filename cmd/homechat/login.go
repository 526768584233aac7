package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"homechat/internal/api"
	"homechat/internal/config"
	"homechat/internal/logging"
	"homechat/internal/session"
)

// commandLogger writes to the session log file; CLI output stays clean.
func commandLogger(sessionName string) *zap.Logger {
	logger, err := logging.NewFileOnly(session.LogPath(sessionName), sessionName)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and store credentials for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionName := session.Resolve(sessionFlag)
		if err := session.ValidateName(sessionName); err != nil {
			return err
		}
		if err := session.EnsureDir(sessionName); err != nil {
			return err
		}

		cfg, err := config.Load(session.ConfigPath())
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Username: ")
		username, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(username)

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}

		creds := session.NewStore(session.CredentialsPath(sessionName))
		client := api.NewClient(cfg.APIOrigin, creds, commandLogger(sessionName))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resolved, err := client.Login(ctx, username, string(password))
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		if err := creds.Save(resolved); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}

		fmt.Printf("Logged in as %s (session %q)\n", resolved.Username, sessionName)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionName := session.Resolve(sessionFlag)
		if err := session.ValidateName(sessionName); err != nil {
			return err
		}

		creds := session.NewStore(session.CredentialsPath(sessionName))
		if err := creds.Clear(); err != nil {
			return err
		}
		fmt.Printf("Logged out of session %q\n", sessionName)
		return nil
	},
}
