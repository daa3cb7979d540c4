package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
	"github.com/busqai/internal/realtime"
)

func (a *app) selfID(ctx context.Context) (string, error) {
	if a.creds.UserID != "" {
		return a.creds.UserID, nil
	}
	p, err := a.data.Me(ctx)
	if err != nil {
		return "", err
	}
	a.creds.UserID = p.ID
	return p.ID, nil
}

func newChatsCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List your negotiations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			self, err := a.selfID(cmd.Context())
			if err != nil {
				return err
			}
			list, err := a.data.ListChats(cmd.Context())
			if err != nil {
				return err
			}
			printChats(cmd.OutOrStdout(), list, self)
			return nil
		},
	}
}

// Приветствие в новый чат добавляет сервер (POST /api/chats).
func newOpenCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <product-id>",
		Short: "Start (or resume) negotiating a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			chat, err := a.data.OpenChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.runSession(cmd.Context(), chat, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newChatCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <chat-id>",
		Short: "Interactive negotiation session",
		Long: "Opens a live negotiation. Plain lines are sent as messages; commands:\n" +
			"  /offer <amount>   send an offer or counter-offer\n" +
			"  /accept           accept the other side's latest offer\n" +
			"  /reject           reject the other side's latest offer\n" +
			"  /retry            retry after an error\n" +
			"  /status           show the negotiation state\n" +
			"  /quit             leave the session",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			chat, err := a.data.GetChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.runSession(cmd.Context(), chat, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runSession ведёт один экран переговоров до /quit, конца ввода или отмены ctx.
func (a *app) runSession(ctx context.Context, chat *model.Chat, in io.Reader, out io.Writer) error {
	self, err := a.selfID(ctx)
	if err != nil {
		return err
	}
	role, ok := chat.RoleOf(self)
	if !ok {
		return fmt.Errorf("no participas en el chat %s", chat.ID)
	}
	var product *model.Product
	if p, err := a.data.GetProduct(ctx, chat.ProductID); err == nil {
		product = &p.Product
	} else {
		logger.Errorf("session product %s: %v", chat.ProductID, err)
	}
	rt, err := realtime.NewClient(a.cfg.Client.APIURL, a.data.Signer())
	if err != nil {
		return err
	}

	view := newSessionView(out, self)
	nc := a.cfg.Negotiation
	ctrl := negotiation.NewController(negotiation.Options{
		ChatID: chat.ID, SelfID: self, Role: role, Product: product,
		Data: a.data, Realtime: rt, OnChange: view.render,
		MaxRounds: nc.MaxRounds, TypingQuiet: nc.TypingQuiet(), PollInterval: nc.PollInterval(),
	})
	defer ctrl.Close()

	view.header(chat, product, role)
	if err := ctrl.Open(ctx); err != nil {
		fmt.Fprintln(out, "!", describeError(err))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(out, "!", err)
				continue
			}
			if c.kind == cmdQuit {
				return nil
			}
			if err := dispatch(ctx, ctrl, c, out); err != nil {
				fmt.Fprintln(out, "!", describeError(err))
			}
		}
	}
}

type cmdKind int

const (
	cmdNone cmdKind = iota
	cmdText
	cmdOffer
	cmdAccept
	cmdReject
	cmdRetry
	cmdStatus
	cmdQuit
)

type command struct {
	kind   cmdKind
	text   string
	amount float64
}

// parseCommand разбирает строку ввода. Пустая строка — cmdNone.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdText, text: line}, nil
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "offer", "oferta":
		v, err := parseAmount(strings.ReplaceAll(rest, ",", "."))
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdOffer, amount: v}, nil
	case "accept", "aceptar":
		c := command{kind: cmdAccept}
		if rest != "" {
			v, err := parseAmount(strings.ReplaceAll(rest, ",", "."))
			if err != nil {
				return command{}, err
			}
			c.amount = v
		}
		return c, nil
	case "reject", "rechazar":
		return command{kind: cmdReject}, nil
	case "retry":
		return command{kind: cmdRetry}, nil
	case "status":
		return command{kind: cmdStatus}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("comando desconocido: /%s", name)
}

// dispatch выполняет команду. /accept без суммы принимает последнее предложение собеседника.
func dispatch(ctx context.Context, ctrl *negotiation.Controller, c command, out io.Writer) error {
	switch c.kind {
	case cmdNone:
		return nil
	case cmdText:
		ctrl.Typing()
		return ctrl.SendText(ctx, c.text)
	case cmdOffer:
		return ctrl.SendOffer(ctx, c.amount)
	case cmdAccept:
		amount := c.amount
		if amount == 0 {
			offer, ok := ctrl.Snapshot().LatestOffer()
			if !ok {
				return negotiation.ErrAcceptNotAllowed
			}
			amount = offer.Amount()
		}
		return ctrl.AcceptOffer(ctx, amount)
	case cmdReject:
		return ctrl.RejectOffer(ctx)
	case cmdRetry:
		return ctrl.Retry(ctx)
	case cmdStatus:
		fmt.Fprintln(out, describeNegotiation(ctrl.Snapshot()))
		return nil
	}
	return errors.New("unsupported command")
}

// sessionView печатает новые сообщения и смену состояния. render вызывается из горутин контроллера.
type sessionView struct {
	out     io.Writer
	selfID  string
	mu      sync.Mutex
	printed map[string]bool
	status  string
	version uint64
}

func newSessionView(out io.Writer, selfID string) *sessionView {
	return &sessionView{out: out, selfID: selfID, printed: make(map[string]bool)}
}

func (s *sessionView) header(chat *model.Chat, product *model.Product, role model.Role) {
	title := chat.ProductID
	if product != nil {
		title = fmt.Sprintf("%s (%s)", product.Title, formatBs(product.Price))
	}
	fmt.Fprintf(s.out, "== %s · %s ==\n", title, role)
	fmt.Fprintln(s.out, "Escribe un mensaje o /offer <monto>, /accept, /reject, /status, /quit")
}

func (s *sessionView) render(v negotiation.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Version != 0 && v.Version <= s.version {
		return
	}
	s.version = v.Version
	for _, m := range v.Messages {
		if s.printed[m.ID] {
			continue
		}
		s.printed[m.ID] = true
		fmt.Fprintln(s.out, formatMessage(m))
	}
	if st := statusLine(v); st != s.status {
		s.status = st
		if st != "" {
			fmt.Fprintln(s.out, st)
		}
	}
}

func formatMessage(m negotiation.MessageView) string {
	who := "Ellos"
	if m.Own {
		who = "Tú"
	}
	ts := m.CreatedAt.Local().Format("15:04")
	line := fmt.Sprintf("[%s] %s: %s", ts, who, m.Content)
	switch m.Kind {
	case model.KindOffer:
		line = fmt.Sprintf("[%s] %s ofrece %s", ts, who, formatBs(m.Amount()))
		if m.Actions.CanAccept {
			line += "  (/accept o /reject)"
		}
	case model.KindAccept:
		line = fmt.Sprintf("[%s] %s aceptó %s", ts, who, formatBs(m.Amount()))
	case model.KindReject:
		line = fmt.Sprintf("[%s] %s rechazó la oferta", ts, who)
	case model.KindSystem:
		line = fmt.Sprintf("[%s] · %s", ts, m.Content)
	}
	return line
}

// statusLine — строка о состоянии, которая печатается только при изменении.
func statusLine(v negotiation.View) string {
	var parts []string
	switch {
	case v.Phase == negotiation.PhaseLoading:
		parts = append(parts, "cargando…")
	case v.Phase == negotiation.PhaseError && v.Err != nil:
		parts = append(parts, "! "+describeError(v.Err))
	}
	switch v.Negotiation.Status {
	case negotiation.StatusAccepted:
		if v.Negotiation.FinalPrice != nil {
			parts = append(parts, "acuerdo cerrado en "+formatBs(*v.Negotiation.FinalPrice))
		}
	case negotiation.StatusRejected:
		parts = append(parts, "negociación rechazada")
	case negotiation.StatusClosed:
		parts = append(parts, "límite de rondas alcanzado")
	}
	if v.PeerTyping {
		parts = append(parts, "escribiendo…")
	}
	if !v.Connected && v.Phase != negotiation.PhaseLoading {
		parts = append(parts, "sin conexión en vivo")
	}
	if len(parts) == 0 {
		return ""
	}
	return "-- " + strings.Join(parts, " · ")
}

func describeNegotiation(v negotiation.View) string {
	n := v.Negotiation
	var b strings.Builder
	fmt.Fprintf(&b, "Estado: %s · ronda %s · ofertas %d", n.Status, formatRound(n), n.OfferCount)
	if n.LastOffer != nil {
		fmt.Fprintf(&b, " · última oferta %s", formatBs(*n.LastOffer))
	}
	if n.FinalPrice != nil {
		fmt.Fprintf(&b, " · precio final %s", formatBs(*n.FinalPrice))
	}
	if v.CanOffer {
		b.WriteString(" · puedes ofertar")
	}
	return b.String()
}

func formatRound(n negotiation.Negotiation) string {
	return strconv.Itoa(min(n.Round, n.MaxRounds)) + "/" + strconv.Itoa(n.MaxRounds)
}
