package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/busqai/internal/model"
	"github.com/busqai/internal/signing"
)

func newLoginCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <phone>",
		Short: "Request an SMS sign-in code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.data.RequestCode(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Código enviado a %s. Continúa con `negotiate verify %s <código>`.\n", args[0], args[0])
			return nil
		},
	}
}

func newVerifyCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <phone> <code>",
		Short: "Exchange the SMS code for a device session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			host, _ := os.Hostname()
			resp, err := a.data.VerifyCode(cmd.Context(), model.VerifyCodeRequest{
				Phone: args[0], Code: args[1], DeviceID: uuid.New().String(), DeviceName: "negotiate@" + host,
			})
			if err != nil {
				return err
			}
			creds := signing.Credentials{SessionID: resp.SessionID, Secret: resp.SessionSecret, UserID: resp.UserID, Phone: args[0]}
			if err := signing.SaveCredentials(a.cfg.Client.CredentialsPath, creds); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Sesión iniciada.")
			if resp.IsNewUser {
				fmt.Fprintln(out, "Completa tu perfil: `negotiate profile setup --name <nombre> --type buyer|seller`.")
			}
			return nil
		},
	}
}

func newSessionsCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List device sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			list, err := a.data.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), list, a.creds.SessionID)
			return nil
		},
	}
}

func newLogoutCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session and forget credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.data.Logout(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "aviso:", describeError(err))
			}
			if err := signing.RemoveCredentials(a.cfg.Client.CredentialsPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada.")
			return nil
		},
	}
}
