// internal/services/cart_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type Cart struct {
	UserID    uuid.UUID  `json:"user_id"`
	Items     []CartItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	ItemCount int        `json:"item_count"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem is keyed by (SubmissionID, ProductID). Name and price are the
// values seen when the item was added.
type CartItem struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	MarketID     uuid.UUID `json:"market_id"`
	ProductID    string    `json:"product_id"`
	BusinessName string    `json:"business_name"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	UnitPrice    float64   `json:"unit_price"`
	Quantity     int       `json:"quantity"`
	LineTotal    float64   `json:"line_total"`
}

func NewCart(userID uuid.UUID) *Cart {
	return &Cart{UserID: userID, Items: []CartItem{}}
}

func (c *Cart) find(submissionID uuid.UUID, productID string) int {
	for i := range c.Items {
		if c.Items[i].SubmissionID == submissionID && c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Recalculate refreshes line totals, subtotal and item count.
func (c *Cart) Recalculate() {
	var subtotal float64
	count := 0
	for i := range c.Items {
		c.Items[i].LineTotal = utils.RoundMoney(c.Items[i].UnitPrice * float64(c.Items[i].Quantity))
		subtotal += c.Items[i].LineTotal
		count += c.Items[i].Quantity
	}
	c.Subtotal = utils.RoundMoney(subtotal)
	c.ItemCount = count
}

type CartService struct {
	db    *gorm.DB
	store CartStore
}

type AddToCartRequest struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"required"`
	ProductID    string    `json:"product_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,min=1,max=999"`
}

type UpdateCartItemRequest struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"required"`
	ProductID    string    `json:"product_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"min=0,max=999"`
}

func NewCartService(db *gorm.DB, store CartStore) *CartService {
	return &CartService{db: db, store: store}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	cart, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Recalculate()
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, req *AddToCartRequest) (*Cart, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	submission, product, err := s.lookupProduct(ctx, req.SubmissionID, req.ProductID)
	if err != nil {
		return nil, err
	}

	cart, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	if idx := cart.find(req.SubmissionID, req.ProductID); idx >= 0 {
		quantity += cart.Items[idx].Quantity
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	}
	if !product.InStock(quantity) {
		return nil, fmt.Errorf("%w: only %d of %s in stock", utils.ErrConflict, stockOf(product), product.Name)
	}

	cart.Items = append(cart.Items, CartItem{
		SubmissionID: submission.ID,
		MarketID:     submission.MarketID,
		ProductID:    product.ID,
		BusinessName: submission.BusinessName,
		Name:         product.Name,
		Unit:         product.Unit,
		ImageURL:     product.ImageURL,
		UnitPrice:    product.Price,
		Quantity:     quantity,
	})

	return s.save(ctx, cart)
}

// UpdateItem sets the quantity of a line; zero removes it.
func (s *CartService) UpdateItem(ctx context.Context, userID uuid.UUID, req *UpdateCartItemRequest) (*Cart, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	cart, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := cart.find(req.SubmissionID, req.ProductID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: item is not in the cart", utils.ErrNotFound)
	}

	if req.Quantity == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return s.save(ctx, cart)
	}

	_, product, err := s.lookupProduct(ctx, req.SubmissionID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.InStock(req.Quantity) {
		return nil, fmt.Errorf("%w: only %d of %s in stock", utils.ErrConflict, stockOf(product), product.Name)
	}

	cart.Items[idx].Quantity = req.Quantity
	cart.Items[idx].UnitPrice = product.Price
	cart.Items[idx].Name = product.Name
	return s.save(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, submissionID uuid.UUID, productID string) (*Cart, error) {
	cart, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := cart.find(submissionID, productID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: item is not in the cart", utils.ErrNotFound)
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return s.save(ctx, cart)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.store.Delete(ctx, userID)
}

func (s *CartService) save(ctx context.Context, cart *Cart) (*Cart, error) {
	cart.Recalculate()
	cart.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// lookupProduct loads an approved submission and the product in its catalog.
func (s *CartService) lookupProduct(ctx context.Context, submissionID uuid.UUID, productID string) (*models.Submission, *models.EmbeddedProduct, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).First(&submission, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: vendor not found", utils.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}
	if submission.Status != models.SubmissionStatusApproved {
		return nil, nil, fmt.Errorf("%w: vendor is not approved to sell", utils.ErrInvalidInput)
	}

	_, product := submission.Products.Find(productID)
	if product == nil {
		return nil, nil, fmt.Errorf("%w: product not found", utils.ErrNotFound)
	}
	if !product.Available {
		return nil, nil, fmt.Errorf("%w: %s is not available", utils.ErrConflict, product.Name)
	}
	return &submission, product, nil
}

func stockOf(p *models.EmbeddedProduct) int {
	if p.Stock == nil {
		return 0
	}
	return *p.Stock
}
