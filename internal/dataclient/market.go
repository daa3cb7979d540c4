package dataclient

import (
	"context"
	"net/url"
	"strconv"

	"github.com/busqai/internal/model"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func searchQuery(p model.SearchParams) url.Values {
	q := url.Values{}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.Lat != nil && p.Lng != nil {
		q.Set("lat", formatFloat(*p.Lat))
		q.Set("lng", formatFloat(*p.Lng))
	}
	if p.MaxPrice > 0 {
		q.Set("max_price", formatFloat(p.MaxPrice))
	}
	if p.MaxDistanceKM > 0 {
		q.Set("max_distance_km", formatFloat(p.MaxDistanceKM))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

func (c *Client) SearchProducts(ctx context.Context, p model.SearchParams) ([]model.ProductSearchResult, error) {
	var out []model.ProductSearchResult
	if err := c.get(ctx, "/api/products/search", searchQuery(p), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PopularProducts(ctx context.Context, limit int) ([]model.ProductSearchResult, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []model.ProductSearchResult
	if err := c.get(ctx, "/api/products/popular", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*model.ProductSearchResult, error) {
	var out model.ProductSearchResult
	if err := c.get(ctx, "/api/products/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProduct(ctx context.Context, in model.ProductInput) (*model.Product, error) {
	var out model.Product
	if err := c.post(ctx, "/api/products", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in model.ProductUpdate) (*model.Product, error) {
	var out model.Product
	if err := c.put(ctx, "/api/products/"+url.PathEscape(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyProducts — инвентарь продавца.
func (c *Client) MyProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	if err := c.get(ctx, "/api/sellers/me/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Wallet(ctx context.Context) (*model.Wallet, error) {
	var out model.Wallet
	if err := c.get(ctx, "/api/wallet", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WalletMovements(ctx context.Context, limit int) ([]model.WalletMovement, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []model.WalletMovement
	if err := c.get(ctx, "/api/wallet/movements", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Recharge(ctx context.Context, amount float64) (*model.Wallet, error) {
	var out model.Wallet
	if err := c.post(ctx, "/api/wallet/recharge", model.RechargeRequest{Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MySales(ctx context.Context) ([]model.Sale, error) {
	var out []model.Sale
	if err := c.get(ctx, "/api/sellers/me/sales", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SellerMetrics(ctx context.Context) (*model.SellerMetrics, error) {
	var out model.SellerMetrics
	if err := c.get(ctx, "/api/sellers/me/metrics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*model.Profile, error) {
	var out model.Profile
	if err := c.get(ctx, "/api/profiles/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProfile(ctx context.Context, in model.ProfileInput) (*model.Profile, error) {
	var out model.Profile
	if err := c.post(ctx, "/api/profiles/me", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in model.ProfileUpdate) (*model.Profile, error) {
	var out model.Profile
	if err := c.put(ctx, "/api/profiles/me", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateLocation(ctx context.Context, in model.LocationInput) (*model.Profile, error) {
	var out model.Profile
	if err := c.put(ctx, "/api/profiles/me/location", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
