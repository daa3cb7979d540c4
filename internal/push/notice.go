package push

import (
	"fmt"

	"github.com/busqai/internal/model"
)

// NegotiationNotice собирает уведомление для второй стороны о новом сообщении.
// ok=false — сообщение не требует пуша (системные).
func NegotiationNotice(recipientID, productTitle string, m model.NegotiationMessage) (NotifyRequest, bool) {
	title := productTitle
	if title == "" {
		title = "BusqAI"
	}
	var body string
	switch m.Kind {
	case model.KindText:
		body = m.Content
		if r := []rune(body); len(r) > 120 {
			body = string(r[:117]) + "..."
		}
	case model.KindOffer:
		body = fmt.Sprintf("Nueva oferta: Bs %.2f", m.Amount())
	case model.KindAccept:
		body = fmt.Sprintf("Oferta aceptada: Bs %.2f", m.Amount())
	case model.KindReject:
		body = "Oferta rechazada"
	default:
		return NotifyRequest{}, false
	}
	return NotifyRequest{
		UserID: recipientID,
		Title:  title,
		Body:   body,
		Data:   map[string]string{"chat_id": m.ChatID, "message_id": m.ID, "message_type": string(m.Kind)},
	}, true
}
