package negotiation

import (
	"sort"

	"github.com/busqai/internal/model"
)

// DefaultMaxRounds — потолок раундов, после которого новые предложения не принимаются.
const DefaultMaxRounds = 5

type Status string

const (
	StatusActive   Status = "active"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	// StatusClosed вычисляется локально при исчерпании лимита; сообщения для него нет.
	StatusClosed Status = "closed"
)

// Terminal — accepted и rejected необратимы.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Negotiation — состояние, выведенное из журнала сообщений. Не хранится отдельно.
type Negotiation struct {
	Round       int      `json:"round"`
	MaxRounds   int      `json:"max_rounds"`
	OfferCount  int      `json:"offer_count"`
	LastOffer   *float64 `json:"last_offer,omitempty"`
	LastOfferBy string   `json:"last_offer_by,omitempty"`
	LastOfferID string   `json:"last_offer_id,omitempty"`
	FinalPrice  *float64 `json:"final_price,omitempty"`
	Status      Status   `json:"status"`
	ResolvedBy  string   `json:"resolved_by,omitempty"`
	// ResolvedAt — id сообщения, завершившего переговоры.
	ResolvedAt string `json:"resolved_at,omitempty"`
}

// Derive вычисляет состояние с лимитом DefaultMaxRounds.
func Derive(msgs []model.NegotiationMessage) Negotiation {
	return DeriveWithLimit(msgs, DefaultMaxRounds)
}

// DeriveWithLimit — чистая функция от набора сообщений: порядок поступления не важен,
// сообщения сортируются по (created_at, id). Первое accept/reject фиксирует результат,
// всё, что пришло после, на состояние не влияет.
func DeriveWithLimit(msgs []model.NegotiationMessage, maxRounds int) Negotiation {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	ordered := make([]model.NegotiationMessage, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	n := Negotiation{MaxRounds: maxRounds, Status: StatusActive}
	for _, m := range ordered {
		switch m.Kind {
		case model.KindOffer:
			if m.OfferAmount == nil {
				continue
			}
			n.OfferCount++
			amount := *m.OfferAmount
			n.LastOffer = &amount
			n.LastOfferBy = m.SenderID
			n.LastOfferID = m.ID
		case model.KindAccept:
			n.Status = StatusAccepted
			n.ResolvedBy = m.SenderID
			n.ResolvedAt = m.ID
			if m.OfferAmount != nil {
				amount := *m.OfferAmount
				n.FinalPrice = &amount
			} else if n.LastOffer != nil {
				amount := *n.LastOffer
				n.FinalPrice = &amount
			}
		case model.KindReject:
			n.Status = StatusRejected
			n.ResolvedBy = m.SenderID
			n.ResolvedAt = m.ID
		}
		if n.Status.Terminal() {
			break
		}
	}
	n.Round = (n.OfferCount+1)/2 + 1
	if n.Status == StatusActive && n.OfferCount >= maxRounds {
		n.Status = StatusClosed
	}
	return n
}

// CanOffer — можно ли сделать новое предложение или встречное.
func CanOffer(n Negotiation) bool {
	return n.Status == StatusActive && n.Round <= n.MaxRounds
}

// CanAccept — можно ли принять msg: переговоры активны, msg — предложение другой стороны.
func CanAccept(n Negotiation, msg model.NegotiationMessage, selfID string) bool {
	return n.Status == StatusActive &&
		msg.Kind == model.KindOffer &&
		msg.OfferAmount != nil &&
		msg.SenderID != selfID
}

// CanReject совпадает с CanAccept: отклонить можно то же, что и принять.
func CanReject(n Negotiation, msg model.NegotiationMessage, selfID string) bool {
	return CanAccept(n, msg, selfID)
}
