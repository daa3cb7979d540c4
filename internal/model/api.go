package model

// Тела запросов и ответов HTTP API. Общие для обработчиков и клиента.

type RequestCodeRequest struct {
	Phone string `json:"phone"`
}

type VerifyCodeRequest struct {
	Phone      string `json:"phone"`
	Code       string `json:"code"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
}

type VerifyCodeResponse struct {
	SessionID     string `json:"session_id"`
	SessionSecret string `json:"session_secret"`
	UserID        string `json:"user_id"`
	IsNewUser     bool   `json:"is_new_user"`
}

type SendMessageRequest struct {
	Content     string      `json:"content"`
	MessageType MessageKind `json:"message_type"`
	OfferPrice  *float64    `json:"offer_price,omitempty"`
}

type AcceptOfferRequest struct {
	Amount float64 `json:"amount"`
}

type OpenChatRequest struct {
	ProductID string `json:"product_id"`
}

type RechargeRequest struct {
	Amount float64 `json:"amount"`
}

type ProductInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	ImageURL    string   `json:"image_url,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Address     string   `json:"address,omitempty"`
}

// ProductUpdate — частичное изменение товара продавцом; nil — поле не меняется.
type ProductUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	IsAvailable *bool    `json:"is_available,omitempty"`
	IsVisible   *bool    `json:"is_visible,omitempty"`
}

type ProfileInput struct {
	FullName string `json:"full_name"`
	UserType Role   `json:"user_type"`
	Address  string `json:"address,omitempty"`
}

type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Address  *string `json:"address,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

type LocationInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// SearchParams — фильтры поиска товаров. Нулевые значения не применяются.
type SearchParams struct {
	Query         string
	Category      string
	Lat           *float64
	Lng           *float64
	MaxPrice      float64
	MaxDistanceKM float64
	Limit         int
	Offset        int
}

type UploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
