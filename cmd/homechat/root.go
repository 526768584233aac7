package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"homechat/internal/app"
	"homechat/internal/session"
	"homechat/internal/tui"
)

var sessionFlag string

var rootCmd = &cobra.Command{
	Use:           "homechat",
	Short:         "Terminal client for property marketplace messaging",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionName := session.Resolve(sessionFlag)
		if err := session.ValidateName(sessionName); err != nil {
			return err
		}

		var ui *tui.App
		fxApp := fx.New(
			app.Module(app.Params{SessionName: sessionName}),
			fx.Populate(&ui),
			fx.NopLogger,
		)

		startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := fxApp.Start(startCtx); err != nil {
			return err
		}

		runErr := ui.Run()

		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
