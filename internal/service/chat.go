package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/negotiation"
	"github.com/busqai/internal/repository"
)

var (
	ErrForbidden          = errors.New("not a participant of this chat")
	ErrChatClosed         = repository.ErrChatClosed
	ErrInvalidMessage     = errors.New("invalid message")
	ErrNotAllowed         = errors.New("action not allowed in current negotiation state")
	ErrProductUnavailable = errors.New("product is not available")
	ErrOwnProduct         = errors.New("cannot negotiate own product")
	ErrNotSeller          = errors.New("product owner is not a seller")
)

// ChatService — серверные правила переговоров. Состояние выводится из истории той же
// функцией, что и на клиенте; решение принимается под блокировкой строки чата.
type ChatService struct {
	chats          *repository.ChatRepository
	messages       *repository.MessageRepository
	deals          *repository.DealRepository
	products       *repository.ProductRepository
	profiles       *repository.ProfileRepository
	maxRounds      int
	commissionRate float64
}

func NewChatService(
	chats *repository.ChatRepository,
	messages *repository.MessageRepository,
	deals *repository.DealRepository,
	products *repository.ProductRepository,
	profiles *repository.ProfileRepository,
	maxRounds int,
	commissionRate float64,
) *ChatService {
	if maxRounds <= 0 {
		maxRounds = negotiation.DefaultMaxRounds
	}
	return &ChatService{
		chats: chats, messages: messages, deals: deals, products: products, profiles: profiles,
		maxRounds: maxRounds, commissionRate: commissionRate,
	}
}

// Open открывает чат покупателя по товару или возвращает существующий.
func (s *ChatService) Open(ctx context.Context, buyerID, productID string) (*model.Chat, bool, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, false, err
	}
	if product.SellerID == buyerID {
		return nil, false, ErrOwnProduct
	}
	if existing, err := s.chats.FindByParticipants(ctx, productID, buyerID, product.SellerID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	if !product.Negotiable() {
		return nil, false, ErrProductUnavailable
	}
	seller, err := s.profiles.GetByID(ctx, product.SellerID)
	if err != nil {
		return nil, false, err
	}
	if seller.UserType != model.RoleSeller {
		return nil, false, ErrNotSeller
	}
	chat, created, err := s.chats.Open(ctx, productID, buyerID, product.SellerID)
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Infof("chat opened id=%s product=%s", chat.ID, productID)
	}
	return chat, created, nil
}

// Get возвращает чат, если userID — его участник.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if _, ok := chat.RoleOf(userID); !ok {
		return nil, ErrForbidden
	}
	return chat, nil
}

func (s *ChatService) List(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	return s.chats.ListForUser(ctx, userID)
}

func (s *ChatService) Messages(ctx context.Context, userID, chatID string) ([]model.NegotiationMessage, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListByChat(ctx, chatID)
}

// Append добавляет text, offer или reject. accept идёт только через Accept.
// created_at ставит репозиторий под блокировкой чата; ответ и рассылка несут сохранённое значение.
func (s *ChatService) Append(ctx context.Context, userID, chatID string, req model.SendMessageRequest) (*model.NegotiationMessage, *model.Chat, error) {
	msg, err := s.buildMessage(userID, chatID, req)
	if err != nil {
		return nil, nil, err
	}
	chat, err := s.messages.Append(ctx, msg, AppendRule(s.maxRounds, msg))
	if err != nil {
		return nil, nil, err
	}
	return msg, chat, nil
}

func (s *ChatService) buildMessage(userID, chatID string, req model.SendMessageRequest) (*model.NegotiationMessage, error) {
	msg := &model.NegotiationMessage{
		ID: uuid.New().String(), ChatID: chatID, SenderID: userID,
		Kind: req.MessageType, Content: strings.TrimSpace(req.Content),
	}
	if msg.Kind == "" {
		msg.Kind = model.KindText
	}
	switch msg.Kind {
	case model.KindText:
		if msg.Content == "" {
			return nil, ErrInvalidMessage
		}
	case model.KindOffer:
		if req.OfferPrice == nil || !validPrice(*req.OfferPrice) {
			return nil, ErrInvalidMessage
		}
		amount := RoundCents(*req.OfferPrice)
		msg.OfferAmount = &amount
		if msg.Content == "" {
			msg.Content = negotiation.OfferContent(amount)
		}
	case model.KindReject:
		if msg.Content == "" {
			msg.Content = negotiation.RejectContent
		}
	default:
		return nil, ErrInvalidMessage
	}
	return msg, nil
}

// Accept принимает последнее предложение собеседника на сумму amount.
func (s *ChatService) Accept(ctx context.Context, userID, chatID string, amount float64) (*model.AcceptResult, *model.Chat, error) {
	if !validPrice(amount) {
		return nil, nil, ErrInvalidMessage
	}
	amount = RoundCents(amount)
	commission, earnings := Commission(amount, s.commissionRate)
	msg := model.NegotiationMessage{
		ID: uuid.New().String(), ChatID: chatID, SenderID: userID, Kind: model.KindAccept,
		Content: negotiation.AcceptContent(amount), OfferAmount: &amount,
	}
	res, chat, err := s.deals.Accept(ctx, repository.AcceptParams{
		Message: msg, CommissionRate: s.commissionRate, CommissionAmount: commission, SellerEarnings: earnings,
	}, AcceptRule(s.maxRounds, userID, amount))
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("offer accepted chat=%s price=%.2f commission=%.2f", chatID, amount, commission)
	return res, chat, nil
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v < 1e10
}

// counterpartOffer — последнее предложение, если его сделал собеседник userID.
// Исчерпанный лимит раундов (closed) не мешает ответить на него.
func counterpartOffer(n negotiation.Negotiation, history []model.NegotiationMessage, userID string) (model.NegotiationMessage, bool) {
	if n.LastOfferID == "" || n.LastOfferBy == userID {
		return model.NegotiationMessage{}, false
	}
	for _, m := range history {
		if m.ID == n.LastOfferID {
			return m, m.OfferAmount != nil
		}
	}
	return model.NegotiationMessage{}, false
}

func participantActive(chat *model.Chat, userID string) error {
	if _, ok := chat.RoleOf(userID); !ok {
		return ErrForbidden
	}
	if chat.Status != model.ChatStatusActive {
		return ErrChatClosed
	}
	return nil
}

// AppendRule проверяет сообщение msg против заблокированного чата и его истории.
func AppendRule(maxRounds int, msg *model.NegotiationMessage) repository.AppendCheck {
	return func(chat *model.Chat, history []model.NegotiationMessage) error {
		if err := participantActive(chat, msg.SenderID); err != nil {
			return err
		}
		n := negotiation.DeriveWithLimit(history, maxRounds)
		if n.Status.Terminal() {
			return ErrChatClosed
		}
		switch msg.Kind {
		case model.KindOffer:
			if !negotiation.CanOffer(n) {
				return ErrNotAllowed
			}
		case model.KindReject:
			if _, ok := counterpartOffer(n, history, msg.SenderID); !ok {
				return ErrNotAllowed
			}
		}
		return nil
	}
}

// AcceptRule: принять можно только последнее предложение собеседника и только на его сумму.
func AcceptRule(maxRounds int, userID string, amount float64) repository.AppendCheck {
	return func(chat *model.Chat, history []model.NegotiationMessage) error {
		if err := participantActive(chat, userID); err != nil {
			return err
		}
		n := negotiation.DeriveWithLimit(history, maxRounds)
		if n.Status.Terminal() {
			return ErrChatClosed
		}
		last, ok := counterpartOffer(n, history, userID)
		if !ok {
			return ErrNotAllowed
		}
		if math.Abs(last.Amount()-amount) >= 0.005 {
			return ErrNotAllowed
		}
		return nil
	}
}
