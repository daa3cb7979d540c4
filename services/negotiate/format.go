package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/busqai/internal/dataclient"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
)

func formatBs(v float64) string {
	return fmt.Sprintf("Bs %.2f", v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// describeError — понятный текст для пользователя по таксономии ошибок клиента.
func describeError(err error) string {
	var (
		apiErr  *dataclient.APIError
		loadErr *negotiation.LoadError
		sendErr *negotiation.SendError
	)
	switch {
	case errors.Is(err, negotiation.ErrAuthRequired):
		return "sesión requerida o expirada: ejecuta `negotiate login <teléfono>`"
	case errors.Is(err, negotiation.ErrNegotiationClosed):
		return "la negociación ya terminó"
	case errors.Is(err, negotiation.ErrChatNotFound):
		return "el chat no existe"
	case errors.Is(err, negotiation.ErrOfferNotAllowed):
		return "ya no se pueden enviar ofertas"
	case errors.Is(err, negotiation.ErrAcceptNotAllowed):
		return "no hay una oferta de la otra parte para responder"
	case errors.Is(err, negotiation.ErrInvalidAmount):
		return "monto inválido"
	case errors.As(err, &loadErr):
		return "no se pudo cargar el chat (/retry para reintentar): " + loadErr.Err.Error()
	case errors.As(err, &sendErr):
		return "no se pudo enviar: " + sendErr.Err.Error()
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return err.Error()
}

func printProfile(w io.Writer, p *model.Profile) {
	fmt.Fprintf(w, "%s (%s)\n", p.FullName, p.UserType)
	fmt.Fprintf(w, "Teléfono: %s\n", p.Phone)
	if p.Address != "" {
		fmt.Fprintf(w, "Dirección: %s\n", p.Address)
	}
	if p.Latitude != nil && p.Longitude != nil {
		fmt.Fprintf(w, "Ubicación: %.5f, %.5f\n", *p.Latitude, *p.Longitude)
	}
}

func printSessions(w io.Writer, list []model.Session, currentID string) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDEVICE\tLAST SEEN\t")
	for _, s := range list {
		mark := ""
		if s.ID == currentID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t\n", mark, s.ID, s.DeviceName, s.LastSeenAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func printProducts(w io.Writer, list []model.ProductSearchResult) {
	if len(list) == 0 {
		fmt.Fprintln(w, "Sin resultados.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tSELLER\tDISTANCE\t")
	for _, p := range list {
		dist := "-"
		if p.DistanceKM != nil {
			dist = fmt.Sprintf("%.1f km", *p.DistanceKM)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", p.ID, truncate(p.Title, 40), formatBs(p.Price), p.Seller.DisplayName(), dist)
	}
	tw.Flush()
}

func printProduct(w io.Writer, p *model.ProductSearchResult) {
	fmt.Fprintf(w, "%s — %s\n", p.Title, formatBs(p.Price))
	fmt.Fprintf(w, "Vendedor: %s\n", p.Seller.DisplayName())
	fmt.Fprintf(w, "Categoría: %s  Stock: %d\n", p.Category, p.Stock)
	if p.Description != "" {
		fmt.Fprintln(w, p.Description)
	}
	if p.Address != "" {
		fmt.Fprintf(w, "Dirección: %s\n", p.Address)
	}
	if !p.Negotiable() {
		fmt.Fprintln(w, "No disponible.")
	}
}

func printInventory(w io.Writer, list []model.Product) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No tienes productos publicados.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tSTOCK\tVISIBLE\tVIEWS\tCHATS\tSALES\t")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%d\t%d\t%d\t\n",
			p.ID, truncate(p.Title, 32), formatBs(p.Price), p.Stock, p.IsVisible, p.ViewCount, p.ChatCount, p.SaleCount)
	}
	tw.Flush()
}

func printWallet(w io.Writer, wallet *model.Wallet, moves []model.WalletMovement) {
	fmt.Fprintf(w, "Saldo: %s  (ganado %s, gastado %s)\n", formatBs(wallet.Balance), formatBs(wallet.TotalEarned), formatBs(wallet.TotalSpent))
	if len(moves) == 0 {
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tDESCRIPTION\t")
	for _, m := range moves {
		sign := "+"
		if m.Type == model.MovementDebit {
			sign = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%s\t\n", m.CreatedAt.Local().Format(time.DateOnly), m.Type, sign, formatBs(m.Amount), m.Description)
	}
	tw.Flush()
}

func printDashboard(w io.Writer, m *model.SellerMetrics, sales []model.Sale) {
	fmt.Fprintf(w, "Productos: %d  Chats activos: %d  Vistas: %d\n", m.Products, m.ActiveChats, m.Views)
	fmt.Fprintf(w, "Ventas: %d  Ingresos: %s  Comisiones: %s\n", m.Sales, formatBs(m.Revenue), formatBs(m.Commissions))
	if len(sales) == 0 {
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tPRODUCT\tPRICE\tCOMMISSION\tEARNINGS\t")
	for _, s := range sales {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", s.CreatedAt.Local().Format(time.DateOnly), s.ProductID,
			formatBs(s.FinalPrice), formatBs(s.CommissionAmount), formatBs(s.SellerEarnings))
	}
	tw.Flush()
}

func printChats(w io.Writer, list []model.ChatSummary, selfID string) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No tienes chats.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tPRODUCT\tWITH\tROLE\tSTATUS\tLAST\t")
	for _, s := range list {
		role, _ := s.Chat.RoleOf(selfID)
		last := ""
		if s.LastMessage != nil {
			last = truncate(strings.ReplaceAll(s.LastMessage.Content, "\n", " "), 30)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", s.Chat.ID, truncate(s.ProductTitle, 28), s.Counterpart, role, s.Chat.Status, last)
	}
	tw.Flush()
}
