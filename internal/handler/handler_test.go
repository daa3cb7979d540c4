package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busqai/internal/middleware"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/push"
	"github.com/busqai/internal/repository"
	"github.com/busqai/internal/service"
	"github.com/busqai/internal/signing"
	"github.com/busqai/internal/ws"
)

// asUser кладёт id из заголовка X-Test-User в контекст, как это делает авторизация.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(middleware.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

// --- чаты ---

type fakeChats struct {
	chat      *model.Chat
	created   bool
	err       error
	appended  *model.NegotiationMessage
	acceptRes *model.AcceptResult
}

func (f *fakeChats) Open(ctx context.Context, buyerID, productID string) (*model.Chat, bool, error) {
	return f.chat, f.created, f.err
}

func (f *fakeChats) Get(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	return f.chat, f.err
}

func (f *fakeChats) List(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	return nil, f.err
}

func (f *fakeChats) Messages(ctx context.Context, userID, chatID string) ([]model.NegotiationMessage, error) {
	return nil, f.err
}

func (f *fakeChats) Append(ctx context.Context, userID, chatID string, req model.SendMessageRequest) (*model.NegotiationMessage, *model.Chat, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.appended = &model.NegotiationMessage{ID: "m1", ChatID: chatID, SenderID: userID, Kind: req.MessageType, Content: req.Content, OfferAmount: req.OfferPrice}
	return f.appended, f.chat, nil
}

func (f *fakeChats) Accept(ctx context.Context, userID, chatID string, amount float64) (*model.AcceptResult, *model.Chat, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.acceptRes, f.chat, nil
}

type fakePublisher struct{ got []model.NegotiationMessage }

func (p *fakePublisher) PublishMessage(m model.NegotiationMessage) { p.got = append(p.got, m) }

type fakeNotifier struct{ ch chan push.NotifyRequest }

func (n *fakeNotifier) Notify(ctx context.Context, req push.NotifyRequest) { n.ch <- req }

type fakeProducts struct {
	product *model.ProductSearchResult
	created *model.Product
	views   int
}

func (f *fakeProducts) Create(ctx context.Context, p *model.Product) error {
	f.created = p
	return nil
}

func (f *fakeProducts) GetByID(ctx context.Context, id string) (*model.ProductSearchResult, error) {
	if f.product == nil || f.product.ID != id {
		return nil, repository.ErrNotFound
	}
	cp := *f.product
	return &cp, nil
}

func (f *fakeProducts) IncrementViews(ctx context.Context, id string) error {
	f.views++
	return nil
}

func (f *fakeProducts) Update(ctx context.Context, id, sellerID string, in model.ProductUpdate) (*model.Product, error) {
	if f.product == nil || f.product.SellerID != sellerID {
		return nil, repository.ErrNotFound
	}
	p := f.product.Product
	if in.Price != nil {
		p.Price = *in.Price
	}
	return &p, nil
}

func (f *fakeProducts) ListBySeller(ctx context.Context, sellerID string) ([]model.Product, error) {
	return nil, nil
}

func (f *fakeProducts) Search(ctx context.Context, sp model.SearchParams) ([]model.ProductSearchResult, error) {
	return nil, nil
}

func (f *fakeProducts) Popular(ctx context.Context, limit int) ([]model.ProductSearchResult, error) {
	return nil, nil
}

func testChat() *model.Chat {
	return &model.Chat{ID: "c1", ProductID: "p1", BuyerID: "buyer", SellerID: "seller", Status: model.ChatStatusActive}
}

func chatRouter(h *ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/api/chats", h.Open)
	r.Get("/api/chats", h.List)
	r.Get("/api/chats/{id}", h.Get)
	r.Post("/api/chats/{id}/messages", h.SendMessage)
	r.Post("/api/chats/{id}/accept", h.Accept)
	return r
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrChatClosed, http.StatusConflict},
		{service.ErrNotAllowed, http.StatusConflict},
		{service.ErrProductUnavailable, http.StatusConflict},
		{service.ErrInvalidMessage, http.StatusUnprocessableEntity},
		{service.ErrOwnProduct, http.StatusUnprocessableEntity},
		{service.ErrNotSeller, http.StatusUnprocessableEntity},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeChatError(rec, "test", tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.NotEmpty(t, errorOf(t, rec))
	}
}

func TestChatRequiresUser(t *testing.T) {
	h := chatRouter(NewChatHandler(&fakeChats{chat: testChat()}, nil, nil, nil))
	rec := do(t, h, http.MethodGet, "/api/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOpenChatStatus(t *testing.T) {
	chats := &fakeChats{chat: testChat(), created: true}
	h := chatRouter(NewChatHandler(chats, nil, nil, nil))

	rec := do(t, h, http.MethodPost, "/api/chats", "buyer", model.OpenChatRequest{ProductID: "p1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	chats.created = false
	rec = do(t, h, http.MethodPost, "/api/chats", "buyer", model.OpenChatRequest{ProductID: "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/chats", "buyer", model.OpenChatRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatListIsEmptyArray(t *testing.T) {
	h := chatRouter(NewChatHandler(&fakeChats{}, nil, nil, nil))
	rec := do(t, h, http.MethodGet, "/api/chats", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSendMessagePublishesAndNotifies(t *testing.T) {
	pub := &fakePublisher{}
	notif := &fakeNotifier{ch: make(chan push.NotifyRequest, 1)}
	products := &fakeProducts{product: &model.ProductSearchResult{Product: model.Product{ID: "p1", Title: "Bicicleta"}}}
	h := chatRouter(NewChatHandler(&fakeChats{chat: testChat()}, pub, notif, products))

	price := 120.0
	rec := do(t, h, http.MethodPost, "/api/chats/c1/messages", "buyer",
		model.SendMessageRequest{MessageType: model.KindOffer, OfferPrice: &price, Content: "Oferta: Bs 120.00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, pub.got, 1)
	assert.Equal(t, "c1", pub.got[0].ChatID)

	select {
	case n := <-notif.ch:
		assert.Equal(t, "seller", n.UserID)
		assert.Equal(t, "Bicicleta", n.Title)
		assert.Equal(t, "c1", n.Data["chat_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("push not sent")
	}
}

func TestSendMessageRejectedNotPublished(t *testing.T) {
	pub := &fakePublisher{}
	h := chatRouter(NewChatHandler(&fakeChats{err: service.ErrChatClosed}, pub, nil, nil))
	rec := do(t, h, http.MethodPost, "/api/chats/c1/messages", "buyer", model.SendMessageRequest{Content: "hola"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, pub.got)
}

func TestAcceptReturnsSale(t *testing.T) {
	amount := 100.0
	res := &model.AcceptResult{
		Message: model.NegotiationMessage{ID: "m2", ChatID: "c1", SenderID: "seller", Kind: model.KindAccept, OfferAmount: &amount},
		Sale:    model.Sale{ID: "s1", FinalPrice: 100, CommissionAmount: 5, SellerEarnings: 95},
	}
	pub := &fakePublisher{}
	h := chatRouter(NewChatHandler(&fakeChats{chat: testChat(), acceptRes: res}, pub, nil, nil))
	rec := do(t, h, http.MethodPost, "/api/chats/c1/accept", "seller", model.AcceptOfferRequest{Amount: 100})
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.AcceptResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 5.0, got.Sale.CommissionAmount)
	require.Len(t, pub.got, 1)
	assert.Equal(t, model.KindAccept, pub.got[0].Kind)
}

// --- товары ---

type fakeProfiles struct {
	profile *model.Profile
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	if f.profile == nil || f.profile.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeProfiles) Complete(ctx context.Context, id string, in model.ProfileInput) (*model.Profile, error) {
	p := *f.profile
	p.FullName, p.UserType = in.FullName, in.UserType
	return &p, nil
}

func (f *fakeProfiles) Update(ctx context.Context, id string, in model.ProfileUpdate) (*model.Profile, error) {
	return f.profile, nil
}

func (f *fakeProfiles) UpdateLocation(ctx context.Context, id string, in model.LocationInput) (*model.Profile, error) {
	p := *f.profile
	p.Latitude, p.Longitude = &in.Latitude, &in.Longitude
	return &p, nil
}

func productRouter(h *ProductHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/api/products", h.Create)
	r.Get("/api/products/{id}", h.Get)
	r.Put("/api/products/{id}", h.Update)
	return r
}

func TestCreateProductSellerOnly(t *testing.T) {
	lat, lng := -17.78, -63.18
	profiles := &fakeProfiles{profile: &model.Profile{ID: "u1", UserType: model.RoleBuyer, Latitude: &lat, Longitude: &lng}}
	products := &fakeProducts{}
	h := productRouter(NewProductHandler(products, profiles))
	in := model.ProductInput{Title: "Mesa", Price: 250, Stock: 2}

	rec := do(t, h, http.MethodPost, "/api/products", "u1", in)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	profiles.profile.UserType = model.RoleSeller
	rec = do(t, h, http.MethodPost, "/api/products", "u1", in)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, products.created)
	assert.NotEmpty(t, products.created.ID)
	assert.Equal(t, "u1", products.created.SellerID)
	assert.Equal(t, "general", products.created.Category)
	assert.True(t, products.created.IsVisible)
	assert.True(t, products.created.IsAvailable)
	assert.Equal(t, lat, products.created.Latitude)
}

func TestCreateProductValidation(t *testing.T) {
	profiles := &fakeProfiles{profile: &model.Profile{ID: "u1", UserType: model.RoleSeller}}
	h := productRouter(NewProductHandler(&fakeProducts{}, profiles))
	for _, in := range []model.ProductInput{
		{Title: "", Price: 10},
		{Title: "Mesa", Price: 0},
		{Title: "Mesa", Price: 10, Stock: -1},
	} {
		rec := do(t, h, http.MethodPost, "/api/products", "u1", in)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, in.Title)
	}
}

func TestGetProductCountsForeignViews(t *testing.T) {
	products := &fakeProducts{product: &model.ProductSearchResult{Product: model.Product{ID: "p1", SellerID: "seller"}}}
	h := productRouter(NewProductHandler(products, &fakeProfiles{}))

	rec := do(t, h, http.MethodGet, "/api/products/p1", "seller", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, products.views)

	rec = do(t, h, http.MethodGet, "/api/products/p1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, products.views)

	rec = do(t, h, http.MethodGet, "/api/products/nope", "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProductOwnerOnly(t *testing.T) {
	products := &fakeProducts{product: &model.ProductSearchResult{Product: model.Product{ID: "p1", SellerID: "seller", Price: 10}}}
	h := productRouter(NewProductHandler(products, &fakeProfiles{}))
	price := 12.5

	rec := do(t, h, http.MethodPut, "/api/products/p1", "other", model.ProductUpdate{Price: &price})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/products/p1", "seller", model.ProductUpdate{Price: &price})
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 12.5, p.Price)

	bad := -1.0
	rec = do(t, h, http.MethodPut, "/api/products/p1", "seller", model.ProductUpdate{Price: &bad})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSearchParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/products/search?q=+silla+&lat=-17.7&lng=-63.1&max_price=300&limit=500&offset=-3", nil)
	sp := searchParams(req)
	assert.Equal(t, "silla", sp.Query)
	require.NotNil(t, sp.Lat)
	assert.Equal(t, -17.7, *sp.Lat)
	assert.Equal(t, 300.0, sp.MaxPrice)
	assert.Equal(t, repository.MaxSearchLimit, sp.Limit)
	assert.Equal(t, 0, sp.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/products/search?lat=-17.7", nil)
	sp = searchParams(req)
	assert.Nil(t, sp.Lat)
	assert.Equal(t, repository.DefaultSearchLimit, sp.Limit)
}

// --- кошелёк и профиль ---

type fakeWallets struct{ recharged float64 }

func (f *fakeWallets) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	return &model.Wallet{UserID: userID, Balance: 50}, nil
}

func (f *fakeWallets) Movements(ctx context.Context, userID string, limit int) ([]model.WalletMovement, error) {
	return nil, nil
}

func (f *fakeWallets) Recharge(ctx context.Context, userID string, amount float64) (*model.Wallet, error) {
	f.recharged += amount
	return &model.Wallet{UserID: userID, Balance: 50 + f.recharged}, nil
}

func TestRecharge(t *testing.T) {
	wallets := &fakeWallets{}
	h := NewWalletHandler(wallets, nil)
	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/api/wallet/recharge", h.Recharge)
	r.Get("/api/wallet/movements", h.Movements)

	rec := do(t, r, http.MethodPost, "/api/wallet/recharge", "u1", model.RechargeRequest{Amount: 20.004})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20.0, wallets.recharged)

	for _, amount := range []float64{0, -5, 20000} {
		rec = do(t, r, http.MethodPost, "/api/wallet/recharge", "u1", model.RechargeRequest{Amount: amount})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/api/wallet/movements", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCompleteProfile(t *testing.T) {
	h := NewProfileHandler(&fakeProfiles{profile: &model.Profile{ID: "u1"}})
	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/api/profiles/me", h.Complete)
	r.Put("/api/profiles/me/location", h.UpdateLocation)

	rec := do(t, r, http.MethodPost, "/api/profiles/me", "u1", model.ProfileInput{FullName: "Ana", UserType: "admin"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/profiles/me", "u1", model.ProfileInput{FullName: " Ana ", UserType: model.RoleSeller})
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Ana", p.FullName)
	assert.Equal(t, model.RoleSeller, p.UserType)

	rec = do(t, r, http.MethodPut, "/api/profiles/me/location", "u1", model.LocationInput{Latitude: 91})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// --- сессии ---

type fakeOTP struct {
	sessions  []model.Session
	loggedOut string
}

func (f *fakeOTP) RequestCode(ctx context.Context, req model.RequestCodeRequest) error {
	return service.ErrRateLimitExceeded
}

func (f *fakeOTP) VerifyCode(ctx context.Context, req model.VerifyCodeRequest) (*model.VerifyCodeResponse, error) {
	return nil, service.ErrInvalidOTP
}

func (f *fakeOTP) ListSessions(ctx context.Context, profileID string) ([]model.Session, error) {
	return f.sessions, nil
}

func (f *fakeOTP) LogoutSession(ctx context.Context, profileID, sessionID string) (bool, error) {
	f.loggedOut = sessionID
	return sessionID == "s1", nil
}

func (f *fakeOTP) LogoutAllSessions(ctx context.Context, profileID string) (int, error) {
	return 2, nil
}

func (f *fakeOTP) ValidateRequest(ctx context.Context, p signing.Params, method, path, body string) (string, error) {
	return "", service.ErrUnauthorized
}

func TestAuthSessions(t *testing.T) {
	otp := &fakeOTP{sessions: []model.Session{{ID: "s1", ProfileID: "u1"}}}
	h := NewAuthHandler(otp)
	r := chi.NewRouter()
	r.Post("/api/auth/request-code", h.RequestCode)
	r.Post("/api/auth/verify-code", h.VerifyCode)
	r.Post("/internal/validate", h.ValidateSession)
	r.Group(func(r chi.Router) {
		r.Use(asUser)
		r.Get("/api/auth/sessions", h.GetSessions)
		r.Delete("/api/auth/sessions/{id}", h.LogoutSession)
	})

	rec := do(t, r, http.MethodGet, "/api/auth/sessions", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = do(t, r, http.MethodDelete, "/api/auth/sessions/s1", "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, http.MethodDelete, "/api/auth/sessions/s9", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/auth/request-code", "", model.RequestCodeRequest{Phone: "70000000"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/auth/verify-code", "", model.VerifyCodeRequest{Phone: "70000000", Code: "1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, r, http.MethodPost, "/internal/validate", "", middleware.ValidateRequest{SessionID: "s1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- websocket ---

func TestWSRequiresParticipant(t *testing.T) {
	hub := ws.NewHub(10, ws.Settings{})
	r := chi.NewRouter()
	r.Use(asUser)

	chats := &fakeChats{err: service.ErrForbidden}
	r.Get("/ws/chats/{chatId}", NewWSHandler(hub, chats, "*").ServeWS)
	rec := do(t, r, http.MethodGet, "/ws/chats/c1", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	chats.err = repository.ErrNotFound
	rec = do(t, r, http.MethodGet, "/ws/chats/c1", "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/ws/chats/c1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSCheckOrigin(t *testing.T) {
	h := NewWSHandler(nil, nil, "https://busqai.bo, https://app.busqai.bo")
	req := httptest.NewRequest(http.MethodGet, "/ws/chats/c1", nil)
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://app.busqai.bo")
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))
}
