package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
	"github.com/busqai/internal/repository"
)

// ProductStore — каталог товаров (repository.ProductRepository).
type ProductStore interface {
	Create(ctx context.Context, p *model.Product) error
	GetByID(ctx context.Context, id string) (*model.ProductSearchResult, error)
	IncrementViews(ctx context.Context, id string) error
	Update(ctx context.Context, id, sellerID string, in model.ProductUpdate) (*model.Product, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Product, error)
	Search(ctx context.Context, sp model.SearchParams) ([]model.ProductSearchResult, error)
	Popular(ctx context.Context, limit int) ([]model.ProductSearchResult, error)
}

// ProfileStore — профили (repository.ProfileRepository).
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	Complete(ctx context.Context, id string, in model.ProfileInput) (*model.Profile, error)
	Update(ctx context.Context, id string, in model.ProfileUpdate) (*model.Profile, error)
	UpdateLocation(ctx context.Context, id string, in model.LocationInput) (*model.Profile, error)
}

type ProductHandler struct {
	products ProductStore
	profiles ProfileStore
}

func NewProductHandler(products ProductStore, profiles ProfileStore) *ProductHandler {
	return &ProductHandler{products: products, profiles: profiles}
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v < 1e10
}

func searchParams(r *http.Request) model.SearchParams {
	sp := model.SearchParams{
		Query:    strings.TrimSpace(r.URL.Query().Get("q")),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Lat:      queryFloat(r, "lat"),
		Lng:      queryFloat(r, "lng"),
		Limit:    repository.ClampLimit(queryInt(r, "limit", repository.DefaultSearchLimit)),
		Offset:   queryInt(r, "offset", 0),
	}
	if v := queryFloat(r, "max_price"); v != nil && *v > 0 {
		sp.MaxPrice = *v
	}
	if v := queryFloat(r, "max_distance_km"); v != nil && *v > 0 {
		sp.MaxDistanceKM = *v
	}
	if sp.Lat == nil || sp.Lng == nil {
		sp.Lat, sp.Lng = nil, nil
	}
	if sp.Offset < 0 {
		sp.Offset = 0
	}
	return sp
}

func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("product.Search", time.Now())()
	list, err := h.products.Search(r.Context(), searchParams(r))
	if err != nil {
		logger.Errorf("product search: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if list == nil {
		list = []model.ProductSearchResult{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ProductHandler) Popular(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.Popular(r.Context(), repository.ClampLimit(queryInt(r, "limit", repository.DefaultSearchLimit)))
	if err != nil {
		logger.Errorf("product popular: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load products")
		return
	}
	if list == nil {
		list = []model.ProductSearchResult{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Get отдаёт товар и увеличивает счётчик просмотров (кроме просмотра владельцем).
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		logger.Errorf("product get: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	if p.SellerID != userID {
		if err := h.products.IncrementViews(r.Context(), p.ID); err != nil {
			logger.Errorf("product views %s: %v", p.ID, err)
		} else {
			p.ViewCount++
		}
	}
	writeJSON(w, http.StatusOK, p)
}

// Create — публикация товара продавцом. Без координат берутся координаты профиля.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var in model.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if in.Title == "" || !validAmount(in.Price) || in.Stock < 0 {
		writeError(w, http.StatusUnprocessableEntity, "title, price > 0 and stock >= 0 required")
		return
	}
	profile, err := h.profiles.GetByID(r.Context(), userID)
	if err != nil {
		logger.Errorf("product create profile %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if profile.UserType != model.RoleSeller {
		writeError(w, http.StatusForbidden, "only sellers can publish products")
		return
	}
	if in.Category == "" {
		in.Category = "general"
	}
	now := time.Now().UTC()
	p := &model.Product{
		ID: uuid.New().String(), SellerID: userID, Title: in.Title, Description: strings.TrimSpace(in.Description),
		Category: in.Category, Price: in.Price, Stock: in.Stock, ImageURL: in.ImageURL, Address: in.Address,
		IsVisible: true, IsAvailable: in.Stock > 0, CreatedAt: now,
	}
	switch {
	case in.Latitude != nil && in.Longitude != nil:
		p.Latitude, p.Longitude = *in.Latitude, *in.Longitude
	case profile.Latitude != nil && profile.Longitude != nil:
		p.Latitude, p.Longitude = *profile.Latitude, *profile.Longitude
	}
	if p.Address == "" {
		p.Address = profile.Address
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		logger.Errorf("product create: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update — правка своего товара: название, цена, остаток, доступность.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	var in model.ProductUpdate
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			writeError(w, http.StatusUnprocessableEntity, "title must not be empty")
			return
		}
		in.Title = &t
	}
	if (in.Price != nil && !validAmount(*in.Price)) || (in.Stock != nil && *in.Stock < 0) {
		writeError(w, http.StatusUnprocessableEntity, "price must be > 0 and stock >= 0")
		return
	}
	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), userID, in)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		logger.Errorf("product update: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Mine — инвентарь текущего продавца.
func (h *ProductHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.products.ListBySeller(r.Context(), userID)
	if err != nil {
		logger.Errorf("product mine: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load products")
		return
	}
	if list == nil {
		list = []model.Product{}
	}
	writeJSON(w, http.StatusOK, list)
}
