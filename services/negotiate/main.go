// Терминальный клиент BusqAI: вход по SMS, поиск, кошелёк, инвентарь и переговоры по товару.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/busqai/internal/config"
	"github.com/busqai/internal/dataclient"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/negotiation"
	"github.com/busqai/internal/signing"
)

// app — состояние одного запуска: конфигурация, сохранённая сессия и клиент сервиса данных.
type app struct {
	cfg     *config.Config
	creds   signing.Credentials
	data    *dataclient.Client
	logFile io.Closer
}

func newApp(logPath string) (*app, error) {
	cfg := config.Load()
	a := &app{cfg: cfg}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
		a.logFile = f
	}
	var signer *signing.Signer
	if creds, err := signing.LoadCredentials(cfg.Client.CredentialsPath); err == nil {
		a.creds = creds
		signer = signing.NewSigner(creds)
	} else if err != signing.ErrNoCredentials {
		logger.Errorf("load credentials: %v", err)
	}
	a.data = dataclient.New(cfg.Client.APIURL, signer,
		dataclient.WithAuthURL(cfg.Client.AuthURL),
		dataclient.WithFilesURL(cfg.Client.FilesURL),
	)
	return a, nil
}

func (a *app) close() {
	logger.Flush()
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// requireLogin — команды кроме login/verify работают только с сохранённой сессией.
func (a *app) requireLogin() error {
	if !a.creds.Valid() {
		return fmt.Errorf("%w: ejecuta `negotiate login <teléfono>`", negotiation.ErrAuthRequired)
	}
	return nil
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".busqai", "negotiate.log")
}

func newRootCmd() *cobra.Command {
	var (
		logPath string
		a       *app
	)
	cmd := &cobra.Command{
		Use:           "negotiate",
		Short:         "BusqAI — compra y negociación desde la terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(logPath)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&logPath, "log-file", defaultLogPath(), "file for client logs")

	getApp := func() *app { return a }
	cmd.AddCommand(newLoginCmd(getApp))
	cmd.AddCommand(newVerifyCmd(getApp))
	cmd.AddCommand(newSessionsCmd(getApp))
	cmd.AddCommand(newLogoutCmd(getApp))
	cmd.AddCommand(newProfileCmd(getApp))
	cmd.AddCommand(newSearchCmd(getApp))
	cmd.AddCommand(newPopularCmd(getApp))
	cmd.AddCommand(newProductCmd(getApp))
	cmd.AddCommand(newInventoryCmd(getApp))
	cmd.AddCommand(newWalletCmd(getApp))
	cmd.AddCommand(newRechargeCmd(getApp))
	cmd.AddCommand(newDashboardCmd(getApp))
	cmd.AddCommand(newChatsCmd(getApp))
	cmd.AddCommand(newOpenCmd(getApp))
	cmd.AddCommand(newChatCmd(getApp))
	return cmd
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", describeError(err))
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	stop()
	os.Exit(code)
}
