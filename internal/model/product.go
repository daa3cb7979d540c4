package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Product struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"image_url,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address,omitempty"`
	IsVisible   bool      `json:"is_visible"`
	IsAvailable bool      `json:"is_available"`
	ViewCount   int       `json:"view_count"`
	ChatCount   int       `json:"chat_count"`
	SaleCount   int       `json:"sale_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Negotiable — товар можно обсуждать только если он виден и в наличии.
func (p *Product) Negotiable() bool {
	return p.IsVisible && p.IsAvailable
}

// ProductSearchResult — товар с продавцом и расстоянием до покупателя.
type ProductSearchResult struct {
	Product
	Seller     Seller   `json:"seller"`
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

// SellerKind различает варианты Seller.
type SellerKind int

const (
	SellerNamed SellerKind = iota
	SellerProfile
)

// Seller — продавец в выдаче. Бэкенд отдаёт либо строку с именем, либо объект профиля;
// форма определяется один раз при декодировании, дальше код работает только с Seller.
type Seller struct {
	Kind     SellerKind
	ID       string
	FullName string
}

// NamedSeller — продавец, известный только по имени.
func NamedSeller(name string) Seller {
	return Seller{Kind: SellerNamed, FullName: name}
}

// ProfileSeller — продавец с профилем.
func ProfileSeller(id, fullName string) Seller {
	return Seller{Kind: SellerProfile, ID: id, FullName: fullName}
}

// DisplayName — имя для показа; пустое имя заменяется на "Vendedor".
func (s Seller) DisplayName() string {
	if n := strings.TrimSpace(s.FullName); n != "" {
		return n
	}
	return "Vendedor"
}

type sellerJSON struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

func (s Seller) MarshalJSON() ([]byte, error) {
	if s.Kind == SellerNamed {
		return json.Marshal(s.FullName)
	}
	return json.Marshal(sellerJSON{ID: s.ID, FullName: s.FullName})
}

func (s *Seller) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = NamedSeller("")
		return nil
	}
	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = NamedSeller(name)
		return nil
	case '{':
		var v sellerJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = ProfileSeller(v.ID, v.FullName)
		return nil
	}
	return errors.New("seller: expected string or object")
}

// Location — координаты для карты и поиска.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p *Product) Location() Location {
	return Location{Lat: p.Latitude, Lng: p.Longitude}
}
