package negotiation

import (
	"time"

	"github.com/busqai/internal/model"
)

const (
	testChat   = "chat-1"
	testBuyer  = "buyer-1"
	testSeller = "seller-1"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func offer(id, sender string, amount float64, sec int) model.NegotiationMessage {
	return model.NegotiationMessage{
		ID: id, ChatID: testChat, SenderID: sender, Kind: model.KindOffer,
		Content: OfferContent(amount), OfferAmount: model.Price(amount), CreatedAt: at(sec),
	}
}

func accept(id, sender string, amount *float64, sec int) model.NegotiationMessage {
	return model.NegotiationMessage{
		ID: id, ChatID: testChat, SenderID: sender, Kind: model.KindAccept,
		Content: "ok", OfferAmount: amount, CreatedAt: at(sec),
	}
}

func reject(id, sender string, sec int) model.NegotiationMessage {
	return model.NegotiationMessage{
		ID: id, ChatID: testChat, SenderID: sender, Kind: model.KindReject,
		Content: RejectContent, CreatedAt: at(sec),
	}
}

func text(id, sender, content string, sec int) model.NegotiationMessage {
	return model.NegotiationMessage{
		ID: id, ChatID: testChat, SenderID: sender, Kind: model.KindText,
		Content: content, CreatedAt: at(sec),
	}
}
