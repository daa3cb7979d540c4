package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/busqai/internal/logger"
	"github.com/busqai/internal/model"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
	// priceWindow — числовой запрос ищет товары с ценой ±20 %.
	priceWindow = 0.2
)

const productCols = `p.id, p.seller_id, p.title, p.description, p.category, p.price, p.stock, p.image_url,
	p.latitude, p.longitude, p.address, p.is_visible, p.is_available, p.view_count, p.chat_count, p.sale_count,
	p.created_at, p.updated_at`

// distanceExpr — расстояние по сфере в км от точки ($lat, $lng) до товара.
const distanceExpr = `6371 * acos(LEAST(1, GREATEST(-1,
	cos(radians(%[1]s)) * cos(radians(p.latitude)) * cos(radians(p.longitude) - radians(%[2]s)) +
	sin(radians(%[1]s)) * sin(radians(p.latitude)))))`

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func productDest(p *model.Product) []any {
	return []any{&p.ID, &p.SellerID, &p.Title, &p.Description, &p.Category, &p.Price, &p.Stock, &p.ImageURL,
		&p.Latitude, &p.Longitude, &p.Address, &p.IsVisible, &p.IsAvailable, &p.ViewCount, &p.ChatCount, &p.SaleCount,
		&p.CreatedAt, &p.UpdatedAt}
}

func scanSearchResult(s rowScanner, withDistance bool) (model.ProductSearchResult, error) {
	var res model.ProductSearchResult
	var sellerName string
	dest := append(productDest(&res.Product), &sellerName)
	var dist float64
	if withDistance {
		dest = append(dest, &dist)
	}
	if err := s.Scan(dest...); err != nil {
		return res, err
	}
	res.Seller = model.ProfileSeller(res.SellerID, sellerName)
	if withDistance {
		res.DistanceKM = &dist
	}
	return res, nil
}

// ClampLimit приводит limit к диапазону 1..MaxSearchLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func (r *ProductRepository) Create(ctx context.Context, p *model.Product) error {
	defer logger.DeferLogDuration("product.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (id, seller_id, title, description, category, price, stock, image_url,
		   latitude, longitude, address, is_visible, is_available, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		p.ID, p.SellerID, p.Title, p.Description, p.Category, p.Price, p.Stock, p.ImageURL,
		p.Latitude, p.Longitude, p.Address, p.IsVisible, p.IsAvailable, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("productRepo.Create: %w", err)
	}
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetByID возвращает товар с продавцом.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*model.ProductSearchResult, error) {
	defer logger.DeferLogDuration("product.GetByID", time.Now())()
	row := r.pool.QueryRow(ctx,
		`SELECT `+productCols+`, s.full_name
		 FROM products p JOIN profiles s ON s.id = p.seller_id
		 WHERE p.id = $1`, id)
	res, err := scanSearchResult(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("productRepo.GetByID: %w", err)
	}
	return &res, nil
}

func (r *ProductRepository) IncrementViews(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("productRepo.IncrementViews: %w", err)
	}
	return nil
}

// Update меняет только переданные поля и только у товара продавца sellerID.
func (r *ProductRepository) Update(ctx context.Context, id, sellerID string, in model.ProductUpdate) (*model.Product, error) {
	defer logger.DeferLogDuration("product.Update", time.Now())()
	p := &model.Product{}
	row := r.pool.QueryRow(ctx,
		`UPDATE products p SET
		   title = COALESCE($3, p.title),
		   price = COALESCE($4, p.price),
		   stock = COALESCE($5, p.stock),
		   is_available = COALESCE($6, p.is_available),
		   is_visible = COALESCE($7, p.is_visible),
		   updated_at = NOW()
		 WHERE p.id = $1 AND p.seller_id = $2
		 RETURNING `+productCols,
		id, sellerID, in.Title, in.Price, in.Stock, in.IsAvailable, in.IsVisible)
	if err := row.Scan(productDest(p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("productRepo.Update: %w", err)
	}
	return p, nil
}

// ListBySeller — инвентарь продавца, новые сверху.
func (r *ProductRepository) ListBySeller(ctx context.Context, sellerID string) ([]model.Product, error) {
	defer logger.DeferLogDuration("product.ListBySeller", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+productCols+` FROM products p WHERE p.seller_id = $1 ORDER BY p.created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("productRepo.ListBySeller: %w", err)
	}
	defer rows.Close()
	list := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(productDest(&p)...); err != nil {
			return nil, fmt.Errorf("productRepo.ListBySeller: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Search — видимые товары в наличии по тексту, категории, цене и расстоянию.
// Числовой запрос дополнительно ищет по цене в окне ±20 %.
// С координатами выдача сортируется по расстоянию, иначе — новые сверху.
func (r *ProductRepository) Search(ctx context.Context, sp model.SearchParams) ([]model.ProductSearchResult, error) {
	defer logger.DeferLogDuration("product.Search", time.Now())()
	var (
		where = []string{"p.is_visible", "p.is_available"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q := strings.TrimSpace(sp.Query); q != "" {
		like := arg("%" + q + "%")
		cond := fmt.Sprintf("(p.title ILIKE %[1]s OR p.description ILIKE %[1]s OR p.category ILIKE %[1]s", like)
		if v, err := strconv.ParseFloat(q, 64); err == nil && v > 0 {
			cond += fmt.Sprintf(" OR p.price BETWEEN %s AND %s", arg(v*(1-priceWindow)), arg(v*(1+priceWindow)))
		}
		where = append(where, cond+")")
	}
	if sp.Category != "" {
		where = append(where, "p.category = "+arg(sp.Category))
	}
	if sp.MaxPrice > 0 {
		where = append(where, "p.price <= "+arg(sp.MaxPrice))
	}

	withDistance := sp.Lat != nil && sp.Lng != nil
	selectCols := productCols + ", s.full_name"
	order := "p.created_at DESC"
	if withDistance {
		dist := fmt.Sprintf(distanceExpr, arg(*sp.Lat), arg(*sp.Lng))
		selectCols += ", " + dist + " AS distance_km"
		order = "distance_km ASC"
		if sp.MaxDistanceKM > 0 {
			where = append(where, dist+" <= "+arg(sp.MaxDistanceKM))
		}
	}

	query := `SELECT ` + selectCols + `
		FROM products p JOIN profiles s ON s.id = p.seller_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + order + `
		LIMIT ` + arg(ClampLimit(sp.Limit)) + ` OFFSET ` + arg(max(sp.Offset, 0))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("productRepo.Search: %w", err)
	}
	defer rows.Close()
	list := []model.ProductSearchResult{}
	for rows.Next() {
		res, err := scanSearchResult(rows, withDistance)
		if err != nil {
			return nil, fmt.Errorf("productRepo.Search: %w", err)
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// Popular — товары с наибольшим интересом: продажи, чаты, просмотры.
func (r *ProductRepository) Popular(ctx context.Context, limit int) ([]model.ProductSearchResult, error) {
	defer logger.DeferLogDuration("product.Popular", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+productCols+`, s.full_name
		 FROM products p JOIN profiles s ON s.id = p.seller_id
		 WHERE p.is_visible AND p.is_available
		 ORDER BY p.sale_count * 5 + p.chat_count * 2 + p.view_count DESC, p.created_at DESC
		 LIMIT $1`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("productRepo.Popular: %w", err)
	}
	defer rows.Close()
	list := []model.ProductSearchResult{}
	for rows.Next() {
		res, err := scanSearchResult(rows, false)
		if err != nil {
			return nil, fmt.Errorf("productRepo.Popular: %w", err)
		}
		list = append(list, res)
	}
	return list, rows.Err()
}
