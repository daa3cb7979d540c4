package negotiation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/busqai/internal/model"
)

const (
	DefaultTypingQuiet    = 3 * time.Second
	DefaultTypingThrottle = time.Second
	DefaultPollInterval   = 10 * time.Second
)

// DataService — контракт сервиса данных, нужный одному экрану переговоров.
type DataService interface {
	HistorySource
	AppendMessage(ctx context.Context, chatID, content string, kind model.MessageKind, offerAmount *float64) (*model.NegotiationMessage, error)
	AcceptOffer(ctx context.Context, chatID string, amount float64) (*model.AcceptResult, error)
}

// Handlers — колбэки realtime-подписки. Вызываются из горутины адаптера.
type Handlers struct {
	OnMessage func(model.NegotiationMessage)
	OnTyping  func(userID string)
	// OnState сообщает о смене состояния канала; err — *SubscriptionError или nil.
	OnState func(connected bool, err error)
}

// Subscription — активная подписка на чат.
type Subscription interface {
	// NotifyTyping — best-effort, ошибки отбрасываются.
	NotifyTyping()
	// Unsubscribe идемпотентен и дожидается остановки читателя.
	Unsubscribe()
}

type Realtime interface {
	Subscribe(ctx context.Context, chatID string, h Handlers) (Subscription, error)
}

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseBusy    Phase = "busy"
	PhaseError   Phase = "error"
)

type MessageActions struct {
	CanAccept bool `json:"can_accept"`
	CanReject bool `json:"can_reject"`
}

type MessageView struct {
	model.NegotiationMessage
	Own     bool           `json:"own"`
	Actions MessageActions `json:"actions"`
}

// View — снимок состояния экрана. Отдаётся по значению, владелец может хранить его.
type View struct {
	Version        uint64         `json:"version"`
	ChatID         string         `json:"chat_id"`
	Role           model.Role     `json:"role"`
	Product        *model.Product `json:"product,omitempty"`
	Phase          Phase          `json:"phase"`
	Messages       []MessageView  `json:"messages"`
	Negotiation    Negotiation    `json:"negotiation"`
	CanOffer       bool           `json:"can_offer"`
	InputEnabled   bool           `json:"input_enabled"`
	PeerTyping     bool           `json:"peer_typing"`
	Connected      bool           `json:"connected"`
	Err            error          `json:"-"`
	SyncErr        error          `json:"-"`
	ScrollToLatest bool           `json:"scroll_to_latest"`
}

// LatestOffer возвращает последнее предложение, если его можно принять.
func (v View) LatestOffer() (MessageView, bool) {
	for i := len(v.Messages) - 1; i >= 0; i-- {
		if v.Messages[i].ID == v.Negotiation.LastOfferID {
			return v.Messages[i], v.Messages[i].Actions.CanAccept
		}
	}
	return MessageView{}, false
}

type Options struct {
	ChatID  string
	SelfID  string
	Role    model.Role
	Product *model.Product

	Data     DataService
	Realtime Realtime // nil — только периодический опрос

	// OnChange вызывается после каждого изменения. Не должен синхронно вызывать Close.
	OnChange func(View)

	MaxRounds      int
	TypingQuiet    time.Duration
	TypingThrottle time.Duration
	PollInterval   time.Duration
	Now            func() time.Time
}

// Controller — сессия одного экрана переговоров для пары (chat, role).
// Мутация журнала и пересчёт состояния выполняются под одной блокировкой,
// сетевые вызовы — вне её.
type Controller struct {
	opts Options

	mu          sync.Mutex
	gen         uint64
	closed      bool
	store       *Store
	state       Negotiation
	loaded      bool
	phase       Phase
	err         error
	syncErr     error
	pinned      bool
	connected   bool
	peerTyping  bool
	typingSeq   uint64
	typingTimer *time.Timer
	lastTyping  time.Time
	sub         Subscription
	pollStop    chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	version     uint64

	emitMu      sync.Mutex
	lastEmitted uint64
}

func NewController(opts Options) *Controller {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = DefaultTypingQuiet
	}
	if opts.TypingThrottle <= 0 {
		opts.TypingThrottle = DefaultTypingThrottle
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		opts:  opts,
		store: NewStore(opts.ChatID),
		phase: PhaseLoading,
	}
	c.state = DeriveWithLimit(nil, opts.MaxRounds)
	return c
}

// Open загружает историю и подписывается на чат. Повторный Open после Close начинает новую сессию.
func (c *Controller) Open(ctx context.Context) error {
	if c.opts.SelfID == "" {
		return ErrAuthRequired
	}
	c.mu.Lock()
	prev := c.stopLocked()
	c.gen++
	gen := c.gen
	c.closed = false
	c.store = NewStore(c.opts.ChatID)
	c.state = DeriveWithLimit(nil, c.opts.MaxRounds)
	c.loaded = false
	c.pinned = false
	c.peerTyping = false
	c.connected = false
	c.err = nil
	c.syncErr = nil
	c.phase = PhaseLoading
	c.ctx, c.cancel = context.WithCancel(ctx)
	v := c.viewLocked(false)
	c.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
	c.emit(v)

	return c.load(ctx, gen)
}

func (c *Controller) load(ctx context.Context, gen uint64) error {
	tmp := NewStore(c.opts.ChatID)
	err := tmp.LoadHistory(ctx, c.opts.Data)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.phase = PhaseError
		c.err = err
		v := c.viewLocked(false)
		c.mu.Unlock()
		c.emit(v)
		return err
	}
	changed := c.store.Merge(tmp.Messages()) > 0
	c.loaded = true
	c.phase = PhaseReady
	c.err = nil
	c.deriveLocked()
	needSub := c.opts.Realtime != nil && c.sub == nil
	subCtx := c.ctx
	if c.opts.Realtime == nil {
		c.startPollingLocked()
	}
	v := c.viewLocked(changed)
	c.mu.Unlock()
	c.emit(v)

	if needSub {
		c.subscribe(subCtx, gen)
	}
	return nil
}

func (c *Controller) subscribe(ctx context.Context, gen uint64) {
	sub, err := c.opts.Realtime.Subscribe(ctx, c.opts.ChatID, Handlers{
		OnMessage: func(m model.NegotiationMessage) { c.onMessage(gen, m) },
		OnTyping:  func(userID string) { c.onTyping(gen, userID) },
		OnState:   func(connected bool, err error) { c.onState(gen, connected, err) },
	})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return
	}
	if err != nil {
		c.syncErr = &SubscriptionError{ChatID: c.opts.ChatID, Err: err}
		c.connected = false
		c.startPollingLocked()
		v := c.viewLocked(false)
		c.mu.Unlock()
		c.emit(v)
		return
	}
	c.sub = sub
	c.mu.Unlock()
}

func (c *Controller) onMessage(gen uint64, m model.NegotiationMessage) {
	c.mu.Lock()
	if gen != c.gen || !c.store.Append(m) {
		c.mu.Unlock()
		return
	}
	c.deriveLocked()
	v := c.viewLocked(true)
	c.mu.Unlock()
	c.emit(v)
}

func (c *Controller) onTyping(gen uint64, userID string) {
	if userID == "" || userID == c.opts.SelfID {
		return
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.typingSeq++
	seq := c.typingSeq
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.opts.TypingQuiet, func() { c.typingQuiet(gen, seq) })
	was := c.peerTyping
	c.peerTyping = true
	var v View
	if !was {
		v = c.viewLocked(false)
	}
	c.mu.Unlock()
	if !was {
		c.emit(v)
	}
}

func (c *Controller) typingQuiet(gen, seq uint64) {
	c.mu.Lock()
	if gen != c.gen || seq != c.typingSeq || !c.peerTyping {
		c.mu.Unlock()
		return
	}
	c.peerTyping = false
	v := c.viewLocked(false)
	c.mu.Unlock()
	c.emit(v)
}

func (c *Controller) onState(gen uint64, connected bool, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	if connected {
		c.syncErr = nil
		c.stopPollingLocked()
	} else {
		if err != nil {
			c.syncErr = err
		}
		c.startPollingLocked()
	}
	ctx := c.ctx
	v := c.viewLocked(false)
	c.mu.Unlock()
	c.emit(v)

	// После (пере)подключения догружаем то, что могло прийти, пока канала не было.
	if connected {
		go c.refresh(ctx, gen)
	}
}

// refresh подтягивает историю, не трогая фазу экрана. Ошибки игнорируются:
// экран остаётся на последнем загруженном состоянии.
func (c *Controller) refresh(ctx context.Context, gen uint64) {
	tmp := NewStore(c.opts.ChatID)
	if err := tmp.LoadHistory(ctx, c.opts.Data); err != nil {
		return
	}
	c.mu.Lock()
	if gen != c.gen || !c.loaded {
		c.mu.Unlock()
		return
	}
	if c.store.Merge(tmp.Messages()) == 0 {
		c.mu.Unlock()
		return
	}
	c.deriveLocked()
	v := c.viewLocked(true)
	c.mu.Unlock()
	c.emit(v)
}

func (c *Controller) startPollingLocked() {
	if c.pollStop != nil || c.opts.PollInterval < 0 || c.closed {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	go c.poll(c.ctx, c.gen, stop)
}

func (c *Controller) stopPollingLocked() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

func (c *Controller) poll(ctx context.Context, gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(c.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			c.refresh(ctx, gen)
		}
	}
}

// SendOffer отправляет предложение или встречное предложение.
func (c *Controller) SendOffer(ctx context.Context, amount float64) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return c.send(ctx, "offer", false,
		func(n Negotiation) error {
			if !CanOffer(n) || c.pinned {
				return ErrOfferNotAllowed
			}
			return nil
		},
		func(ctx context.Context) (*model.NegotiationMessage, error) {
			return c.opts.Data.AppendMessage(ctx, c.opts.ChatID, OfferContent(amount), model.KindOffer, model.Price(amount))
		})
}

// SendText отправляет обычное сообщение. На состояние переговоров не влияет.
func (c *Controller) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return c.send(ctx, "text", false,
		func(n Negotiation) error {
			if n.Status.Terminal() || c.pinned {
				return ErrNegotiationClosed
			}
			return nil
		},
		func(ctx context.Context) (*model.NegotiationMessage, error) {
			return c.opts.Data.AppendMessage(ctx, c.opts.ChatID, text, model.KindText, nil)
		})
}

// AcceptOffer принимает последнее предложение другой стороны. Ввод блокируется сразу,
// не дожидаясь эха; при ошибке блокировка снимается.
func (c *Controller) AcceptOffer(ctx context.Context, amount float64) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return c.send(ctx, "accept", true,
		c.checkLatestOffer,
		func(ctx context.Context) (*model.NegotiationMessage, error) {
			res, err := c.opts.Data.AcceptOffer(ctx, c.opts.ChatID, amount)
			if err != nil {
				return nil, err
			}
			return &res.Message, nil
		})
}

// RejectOffer отклоняет последнее предложение другой стороны и завершает переговоры.
func (c *Controller) RejectOffer(ctx context.Context) error {
	return c.send(ctx, "reject", true,
		c.checkLatestOffer,
		func(ctx context.Context) (*model.NegotiationMessage, error) {
			return c.opts.Data.AppendMessage(ctx, c.opts.ChatID, RejectContent, model.KindReject, nil)
		})
}

// checkLatestOffer вызывается под c.mu.
func (c *Controller) checkLatestOffer(n Negotiation) error {
	if c.pinned || n.LastOfferID == "" {
		return ErrAcceptNotAllowed
	}
	for _, m := range c.store.msgs {
		if m.ID == n.LastOfferID {
			if CanAccept(n, m, c.opts.SelfID) {
				return nil
			}
			break
		}
	}
	return ErrAcceptNotAllowed
}

func (c *Controller) send(
	ctx context.Context,
	action string,
	pin bool,
	check func(Negotiation) error,
	call func(context.Context) (*model.NegotiationMessage, error),
) error {
	if c.opts.SelfID == "" {
		return ErrAuthRequired
	}
	c.mu.Lock()
	if c.closed || !c.loaded || c.phase == PhaseBusy {
		c.mu.Unlock()
		return ErrNotReady
	}
	if err := check(c.state); err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.gen
	c.phase = PhaseBusy
	c.err = nil
	if pin {
		c.pinned = true
	}
	v := c.viewLocked(false)
	c.mu.Unlock()
	c.emit(v)

	msg, err := call(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if err != nil {
			return &SendError{Action: action, Err: err}
		}
		return nil
	}
	if err != nil {
		if pin {
			c.pinned = false
		}
		serr := &SendError{Action: action, Err: err}
		c.phase = PhaseError
		c.err = serr
		v := c.viewLocked(false)
		c.mu.Unlock()
		c.emit(v)
		return serr
	}
	changed := msg != nil && c.store.Append(*msg)
	c.phase = PhaseReady
	c.deriveLocked()
	v = c.viewLocked(changed)
	c.mu.Unlock()
	c.emit(v)
	return nil
}

// Retry выходит из фазы error: после ошибки отправки просто сбрасывает её,
// после ошибки загрузки загружает историю заново.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.phase != PhaseError {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	if c.loaded {
		c.phase = PhaseReady
		c.err = nil
		v := c.viewLocked(false)
		c.mu.Unlock()
		c.emit(v)
		return nil
	}
	c.phase = PhaseLoading
	c.err = nil
	v := c.viewLocked(false)
	c.mu.Unlock()
	c.emit(v)
	return c.load(ctx, gen)
}

// Typing сообщает собеседнику, что пользователь печатает. Не чаще раза в TypingThrottle.
func (c *Controller) Typing() {
	c.mu.Lock()
	sub := c.sub
	now := c.opts.Now()
	if sub == nil || c.closed || now.Sub(c.lastTyping) < c.opts.TypingThrottle {
		c.mu.Unlock()
		return
	}
	c.lastTyping = now
	c.mu.Unlock()
	sub.NotifyTyping()
}

// Close освобождает подписку и таймеры. Поздние ответы сети после Close игнорируются.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	sub := c.stopLocked()
	c.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// stopLocked останавливает фоновые задачи и возвращает подписку для отписки вне блокировки.
func (c *Controller) stopLocked() Subscription {
	c.stopPollingLocked()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	sub := c.sub
	c.sub = nil
	return sub
}

// Snapshot возвращает текущее состояние экрана.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.viewLocked(false)
	return v
}

func (c *Controller) deriveLocked() {
	c.state = DeriveWithLimit(c.store.msgs, c.opts.MaxRounds)
	if c.state.Status.Terminal() {
		c.pinned = false
	}
}

func (c *Controller) viewLocked(scroll bool) View {
	c.version++
	n := c.state
	canOffer := c.loaded && CanOffer(n) && !c.pinned
	interactive := c.loaded && !c.closed && c.phase != PhaseBusy && c.phase != PhaseLoading
	msgs := make([]MessageView, len(c.store.msgs))
	for i, m := range c.store.msgs {
		mv := MessageView{NegotiationMessage: m, Own: m.SenderID == c.opts.SelfID}
		if interactive && !c.pinned && m.ID == n.LastOfferID {
			mv.Actions.CanAccept = CanAccept(n, m, c.opts.SelfID)
			mv.Actions.CanReject = CanReject(n, m, c.opts.SelfID)
		}
		msgs[i] = mv
	}
	return View{
		Version:        c.version,
		ChatID:         c.opts.ChatID,
		Role:           c.opts.Role,
		Product:        c.opts.Product,
		Phase:          c.phase,
		Messages:       msgs,
		Negotiation:    n,
		CanOffer:       canOffer,
		InputEnabled:   canOffer && interactive,
		PeerTyping:     c.peerTyping,
		Connected:      c.connected,
		Err:            c.err,
		SyncErr:        c.syncErr,
		ScrollToLatest: scroll,
	}
}

func (c *Controller) emit(v View) {
	if c.opts.OnChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if v.Version <= c.lastEmitted {
		return
	}
	c.lastEmitted = v.Version
	c.opts.OnChange(v)
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// RejectContent — текст сообщения об отказе.
const RejectContent = "Oferta rechazada"

// OfferContent — текст сообщения с предложением.
func OfferContent(amount float64) string {
	return fmt.Sprintf("Oferta: Bs %.2f", amount)
}

// AcceptContent — текст сообщения о принятии.
func AcceptContent(amount float64) string {
	return fmt.Sprintf("Oferta aceptada: Bs %.2f", amount)
}
