package negotiation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busqai/internal/model"
)

// fakeData — сервис данных в памяти. Сообщения получают возрастающий created_at.
type fakeData struct {
	mu       sync.Mutex
	msgs     []model.NegotiationMessage
	seq      int
	calls    int
	loadErr  error
	sendErr  error
	gate     chan struct{} // если задан, отправки ждут закрытия
	loadGate chan struct{}
}

func (f *fakeData) LoadMessages(ctx context.Context, chatID string) ([]model.NegotiationMessage, error) {
	f.mu.Lock()
	gate := f.loadGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]model.NegotiationMessage, len(f.msgs))
	copy(out, f.msgs)
	return out, nil
}

func (f *fakeData) insert(sender string, kind model.MessageKind, content string, amount *float64) model.NegotiationMessage {
	f.seq++
	m := model.NegotiationMessage{
		ID: fmt.Sprintf("srv-%02d", f.seq), ChatID: testChat, SenderID: sender,
		Kind: kind, Content: content, OfferAmount: amount, CreatedAt: at(100 + f.seq),
	}
	f.msgs = append(f.msgs, m)
	return m
}

func (f *fakeData) AppendMessage(ctx context.Context, chatID, content string, kind model.MessageKind, amount *float64) (*model.NegotiationMessage, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	m := f.insert(testBuyer, kind, content, amount)
	return &m, nil
}

func (f *fakeData) AcceptOffer(ctx context.Context, chatID string, amount float64) (*model.AcceptResult, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	m := f.insert(testSeller, model.KindAccept, AcceptContent(amount), model.Price(amount))
	return &model.AcceptResult{Message: m}, nil
}

func (f *fakeData) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSub struct {
	mu           sync.Mutex
	unsubscribed int
	typing       int
}

func (s *fakeSub) NotifyTyping() {
	s.mu.Lock()
	s.typing++
	s.mu.Unlock()
}

func (s *fakeSub) Unsubscribe() {
	s.mu.Lock()
	s.unsubscribed++
	s.mu.Unlock()
}

type fakeRealtime struct {
	mu   sync.Mutex
	h    Handlers
	sub  *fakeSub
	subs int
	err  error
}

func (r *fakeRealtime) Subscribe(ctx context.Context, chatID string, h Handlers) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.h = h
	r.sub = &fakeSub{}
	r.subs++
	return r.sub, nil
}

func (r *fakeRealtime) handlers() Handlers {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h
}

func newTestController(t *testing.T, self string, data *fakeData, rt Realtime) *Controller {
	t.Helper()
	opts := Options{
		ChatID:       testChat,
		SelfID:       self,
		Role:         model.RoleBuyer,
		Product:      &model.Product{ID: "p1", Title: "Bicicleta", Price: 50},
		Data:         data,
		PollInterval: -1,
		TypingQuiet:  30 * time.Millisecond,
	}
	if self == testSeller {
		opts.Role = model.RoleSeller
	}
	if rt != nil {
		opts.Realtime = rt
	}
	c := NewController(opts)
	t.Cleanup(c.Close)
	return c
}

func TestControllerHappyPath(t *testing.T) {
	data := &fakeData{}
	rt := &fakeRealtime{}
	var views []View
	var mu sync.Mutex

	c := newTestController(t, testBuyer, data, rt)
	c.opts.OnChange = func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	}
	require.NoError(t, c.Open(context.Background()))
	v := c.Snapshot()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.True(t, v.InputEnabled)
	assert.Equal(t, 1, v.Negotiation.Round)

	require.NoError(t, c.SendOffer(context.Background(), 45))
	v = c.Snapshot()
	require.Len(t, v.Messages, 1)
	assert.True(t, v.Messages[0].Own)
	assert.False(t, v.Messages[0].Actions.CanAccept, "own offer is not acceptable")
	assert.Equal(t, 45.0, *v.Negotiation.LastOffer)

	// эхо собственного сообщения не дублирует запись
	rt.handlers().OnMessage(v.Messages[0].NegotiationMessage)
	assert.Len(t, c.Snapshot().Messages, 1)

	rt.handlers().OnMessage(accept("acc", testSeller, model.Price(45), 200))
	v = c.Snapshot()
	assert.Equal(t, StatusAccepted, v.Negotiation.Status)
	require.NotNil(t, v.Negotiation.FinalPrice)
	assert.Equal(t, 45.0, *v.Negotiation.FinalPrice)
	assert.False(t, v.InputEnabled)
	assert.False(t, v.CanOffer)
	assert.ErrorIs(t, c.SendOffer(context.Background(), 40), ErrOfferNotAllowed)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	assert.Equal(t, PhaseLoading, views[0].Phase)
	assert.True(t, views[len(views)-1].ScrollToLatest)
	for i := 1; i < len(views); i++ {
		assert.Greater(t, views[i].Version, views[i-1].Version)
	}
}

func TestControllerSendOfferValidation(t *testing.T) {
	data := &fakeData{}
	c := newTestController(t, testBuyer, data, nil)
	require.NoError(t, c.Open(context.Background()))

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, c.SendOffer(context.Background(), amount), ErrInvalidAmount)
	}
	assert.ErrorIs(t, c.SendText(context.Background(), "   "), ErrEmptyMessage)
	assert.Equal(t, 0, data.callCount())
}

func TestControllerOfferRefusedAtCeiling(t *testing.T) {
	data := &fakeData{}
	for i := 0; i < DefaultMaxRounds; i++ {
		sender := testBuyer
		if i%2 == 1 {
			sender = testSeller
		}
		data.insert(sender, model.KindOffer, "o", model.Price(float64(100-i)))
	}
	c := newTestController(t, testBuyer, data, nil)
	require.NoError(t, c.Open(context.Background()))

	v := c.Snapshot()
	assert.Equal(t, StatusClosed, v.Negotiation.Status)
	assert.False(t, v.InputEnabled)
	assert.ErrorIs(t, c.SendOffer(context.Background(), 10), ErrOfferNotAllowed)
	assert.Equal(t, 0, data.callCount())
}

func TestControllerSendFailureLeavesStoreUntouched(t *testing.T) {
	boom := errors.New("timeout")
	data := &fakeData{sendErr: boom}
	c := newTestController(t, testBuyer, data, nil)
	require.NoError(t, c.Open(context.Background()))

	err := c.SendOffer(context.Background(), 45)
	var serr *SendError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "offer", serr.Action)
	assert.ErrorIs(t, err, boom)

	v := c.Snapshot()
	assert.Equal(t, PhaseError, v.Phase)
	assert.Empty(t, v.Messages)
	assert.ErrorIs(t, v.Err, boom)

	require.NoError(t, c.Retry(context.Background()))
	v = c.Snapshot()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Nil(t, v.Err)
	assert.True(t, v.InputEnabled)
}

func TestControllerAuthErrorSurfacesThroughSend(t *testing.T) {
	data := &fakeData{sendErr: ErrAuthRequired}
	c := newTestController(t, testBuyer, data, nil)
	require.NoError(t, c.Open(context.Background()))
	assert.ErrorIs(t, c.SendText(context.Background(), "hola"), ErrAuthRequired)
}

func TestControllerRequiresIdentity(t *testing.T) {
	c := newTestController(t, "", &fakeData{}, nil)
	assert.ErrorIs(t, c.Open(context.Background()), ErrAuthRequired)
}

func TestControllerAcceptPinsInputUntilFailure(t *testing.T) {
	data := &fakeData{}
	data.insert(testBuyer, model.KindOffer, "o", model.Price(45))
	rt := &fakeRealtime{}
	c := newTestController(t, testSeller, data, rt)
	require.NoError(t, c.Open(context.Background()))

	v := c.Snapshot()
	latest, ok := v.LatestOffer()
	require.True(t, ok)
	assert.True(t, latest.Actions.CanReject)
	assert.True(t, v.CanOffer)

	gate := make(chan struct{})
	data.mu.Lock()
	data.gate = gate
	data.sendErr = errors.New("503")
	data.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.AcceptOffer(context.Background(), 45) }()

	require.Eventually(t, func() bool { return c.Snapshot().Phase == PhaseBusy }, time.Second, 5*time.Millisecond)
	v = c.Snapshot()
	assert.False(t, v.CanOffer, "input pinned while accept is in flight")
	assert.False(t, v.InputEnabled)
	_, ok = v.LatestOffer()
	assert.False(t, ok)
	assert.ErrorIs(t, c.SendOffer(context.Background(), 50), ErrNotReady)

	close(gate)
	var serr *SendError
	require.ErrorAs(t, <-done, &serr)
	assert.Equal(t, "accept", serr.Action)

	v = c.Snapshot()
	assert.True(t, v.CanOffer, "pin released after failure")
	assert.Equal(t, StatusActive, v.Negotiation.Status)
	assert.Len(t, v.Messages, 1)
}

func TestControllerAcceptSuccess(t *testing.T) {
	data := &fakeData{}
	data.insert(testBuyer, model.KindOffer, "o", model.Price(45))
	c := newTestController(t, testSeller, data, &fakeRealtime{})
	require.NoError(t, c.Open(context.Background()))

	require.NoError(t, c.AcceptOffer(context.Background(), 45))
	v := c.Snapshot()
	assert.Equal(t, StatusAccepted, v.Negotiation.Status)
	assert.Equal(t, 45.0, *v.Negotiation.FinalPrice)
	assert.False(t, v.InputEnabled)
	assert.ErrorIs(t, c.RejectOffer(context.Background()), ErrAcceptNotAllowed)
}

func TestControllerCannotAcceptOwnOffer(t *testing.T) {
	data := &fakeData{}
	data.insert(testBuyer, model.KindOffer, "o", model.Price(45))
	c := newTestController(t, testBuyer, data, nil)
	require.NoError(t, c.Open(context.Background()))

	assert.ErrorIs(t, c.AcceptOffer(context.Background(), 45), ErrAcceptNotAllowed)
	assert.ErrorIs(t, c.RejectOffer(context.Background()), ErrAcceptNotAllowed)
	assert.Equal(t, 0, data.callCount())
}

func TestControllerRejectEndsNegotiation(t *testing.T) {
	data := &fakeData{}
	data.insert(testSeller, model.KindOffer, "o", model.Price(60))
	c := newTestController(t, testBuyer, data, nil)
	require.NoError(t, c.Open(context.Background()))

	require.NoError(t, c.RejectOffer(context.Background()))
	v := c.Snapshot()
	assert.Equal(t, StatusRejected, v.Negotiation.Status)
	assert.False(t, v.CanOffer)
	assert.ErrorIs(t, c.SendText(context.Background(), "hola"), ErrNegotiationClosed)
}

func TestControllerLoadErrorAndRetry(t *testing.T) {
	data := &fakeData{loadErr: errors.New("not found")}
	c := newTestController(t, testBuyer, data, nil)

	err := c.Open(context.Background())
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	v := c.Snapshot()
	assert.Equal(t, PhaseError, v.Phase)
	assert.False(t, v.InputEnabled)
	assert.ErrorIs(t, c.SendOffer(context.Background(), 10), ErrNotReady)

	data.mu.Lock()
	data.loadErr = nil
	data.insert(testSeller, model.KindText, "hola", nil)
	data.mu.Unlock()

	require.NoError(t, c.Retry(context.Background()))
	v = c.Snapshot()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Len(t, v.Messages, 1)
}

func TestControllerDiscardsLateHistoryAfterClose(t *testing.T) {
	gate := make(chan struct{})
	data := &fakeData{loadGate: gate}
	data.insert(testSeller, model.KindText, "hola", nil)
	rt := &fakeRealtime{}
	c := newTestController(t, testBuyer, data, rt)

	done := make(chan error, 1)
	go func() { done <- c.Open(context.Background()) }()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.gen == 1
	}, time.Second, 5*time.Millisecond)

	c.Close()
	close(gate)
	require.NoError(t, <-done)

	v := c.Snapshot()
	assert.Empty(t, v.Messages)
	assert.Equal(t, PhaseLoading, v.Phase)
	rt.mu.Lock()
	assert.Equal(t, 0, rt.subs, "no subscription after close")
	rt.mu.Unlock()
}

func TestControllerReopenIgnoresStaleLoad(t *testing.T) {
	first := make(chan struct{})
	data := &fakeData{loadGate: first}
	c := newTestController(t, testBuyer, data, nil)

	done := make(chan error, 1)
	go func() { done <- c.Open(context.Background()) }()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.gen == 1
	}, time.Second, 5*time.Millisecond)

	c.Close()
	data.mu.Lock()
	data.loadGate = nil
	data.insert(testSeller, model.KindText, "nuevo", nil)
	data.mu.Unlock()
	require.NoError(t, c.Open(context.Background()))

	// первый запрос возвращается последним и не должен ничего испортить
	data.mu.Lock()
	data.msgs = nil
	data.mu.Unlock()
	close(first)
	require.NoError(t, <-done)

	v := c.Snapshot()
	assert.Equal(t, PhaseReady, v.Phase)
	require.Len(t, v.Messages, 1)
	assert.Equal(t, "nuevo", v.Messages[0].Content)
}

func TestControllerReconnectReloadsHistory(t *testing.T) {
	data := &fakeData{}
	rt := &fakeRealtime{}
	c := newTestController(t, testBuyer, data, rt)
	require.NoError(t, c.Open(context.Background()))
	rt.handlers().OnState(true, nil)

	// предложение ушло по RPC, после чего канал оборвался
	require.NoError(t, c.SendOffer(context.Background(), 45))
	rt.handlers().OnState(false, &SubscriptionError{ChatID: testChat, Err: errors.New("eof")})
	v := c.Snapshot()
	assert.False(t, v.Connected)
	assert.Error(t, v.SyncErr)
	assert.Equal(t, PhaseReady, v.Phase)

	data.mu.Lock()
	counter := data.insert(testSeller, model.KindOffer, "o", model.Price(48))
	data.mu.Unlock()

	rt.handlers().OnState(true, nil)
	require.Eventually(t, func() bool { return len(c.Snapshot().Messages) == 2 }, time.Second, 5*time.Millisecond)

	// состояние совпадает с тем, что получилось бы при живом канале
	live := NewStore(testChat)
	data.mu.Lock()
	live.Merge(data.msgs)
	data.mu.Unlock()
	live.Append(counter)

	v = c.Snapshot()
	assert.True(t, v.Connected)
	assert.Nil(t, v.SyncErr)
	var got []model.NegotiationMessage
	for _, m := range v.Messages {
		got = append(got, m.NegotiationMessage)
	}
	assert.Equal(t, live.Messages(), got)
	assert.Equal(t, Derive(live.Messages()), v.Negotiation)
}

func TestControllerPollsWithoutRealtime(t *testing.T) {
	data := &fakeData{}
	c := newTestController(t, testBuyer, data, nil)
	c.opts.PollInterval = 10 * time.Millisecond
	require.NoError(t, c.Open(context.Background()))

	data.mu.Lock()
	data.insert(testSeller, model.KindOffer, "o", model.Price(70))
	data.mu.Unlock()

	require.Eventually(t, func() bool { return len(c.Snapshot().Messages) == 1 }, time.Second, 5*time.Millisecond)
}

func TestControllerFallsBackToPollingOnSubscribeError(t *testing.T) {
	data := &fakeData{}
	rt := &fakeRealtime{err: errors.New("dial refused")}
	c := newTestController(t, testBuyer, data, rt)
	c.opts.PollInterval = 10 * time.Millisecond
	require.NoError(t, c.Open(context.Background()))

	var serr *SubscriptionError
	require.ErrorAs(t, c.Snapshot().SyncErr, &serr)

	data.mu.Lock()
	data.insert(testSeller, model.KindText, "sigues?", nil)
	data.mu.Unlock()
	require.Eventually(t, func() bool { return len(c.Snapshot().Messages) == 1 }, time.Second, 5*time.Millisecond)
}

func TestControllerPeerTyping(t *testing.T) {
	rt := &fakeRealtime{}
	c := newTestController(t, testBuyer, &fakeData{}, rt)
	require.NoError(t, c.Open(context.Background()))

	rt.handlers().OnTyping(testBuyer)
	assert.False(t, c.Snapshot().PeerTyping, "own typing ignored")

	rt.handlers().OnTyping(testSeller)
	assert.True(t, c.Snapshot().PeerTyping)
	require.Eventually(t, func() bool { return !c.Snapshot().PeerTyping }, time.Second, 5*time.Millisecond)
}

func TestControllerTypingThrottle(t *testing.T) {
	rt := &fakeRealtime{}
	now := t0
	c := newTestController(t, testBuyer, &fakeData{}, rt)
	c.opts.Now = func() time.Time { return now }
	require.NoError(t, c.Open(context.Background()))

	c.Typing()
	c.Typing()
	now = now.Add(DefaultTypingThrottle)
	c.Typing()

	rt.sub.mu.Lock()
	defer rt.sub.mu.Unlock()
	assert.Equal(t, 2, rt.sub.typing)
}

func TestControllerCloseReleasesSubscription(t *testing.T) {
	rt := &fakeRealtime{}
	c := newTestController(t, testBuyer, &fakeData{}, rt)
	require.NoError(t, c.Open(context.Background()))
	sub := rt.sub
	h := rt.handlers()

	c.Close()
	c.Close()
	sub.mu.Lock()
	assert.Equal(t, 1, sub.unsubscribed)
	sub.mu.Unlock()

	h.OnMessage(offer("late", testSeller, 10, 300))
	assert.Empty(t, c.Snapshot().Messages)
	assert.ErrorIs(t, c.SendText(context.Background(), "hola"), ErrNotReady)
}
