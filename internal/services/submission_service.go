// internal/services/submission_service.go
package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type SubmissionService struct {
	db      *gorm.DB
	email   *EmailService
	storage *StorageService
}

type ProductInput struct {
	Name        string  `json:"name" validate:"required,min=2,max=120"`
	Description string  `json:"description" validate:"max=2000"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Unit        string  `json:"unit" validate:"max=30"`
	Stock       *int    `json:"stock" validate:"omitempty,min=0"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
	Available   *bool   `json:"available"`
}

type UpdateProductRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=120"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Price       *float64 `json:"price" validate:"omitempty,gt=0"`
	Unit        *string  `json:"unit" validate:"omitempty,max=30"`
	Stock       *int     `json:"stock" validate:"omitempty,min=0"`
	ClearStock  bool     `json:"clear_stock"`
	ImageURL    *string  `json:"image_url" validate:"omitempty,url"`
	Available   *bool    `json:"available"`
}

type CreateSubmissionRequest struct {
	MarketID     uuid.UUID      `json:"market_id" validate:"required"`
	BusinessName string         `json:"business_name" validate:"required,min=2,max=255"`
	ContactName  string         `json:"contact_name" validate:"max=255"`
	Email        string         `json:"email" validate:"required,email"`
	Phone        string         `json:"phone" validate:"omitempty,phone"`
	Website      string         `json:"website" validate:"omitempty,url"`
	Description  string         `json:"description" validate:"max=5000"`
	Categories   []string       `json:"categories" validate:"max=20,dive,min=2,max=50"`
	Products     []ProductInput `json:"products" validate:"max=200,dive"`
	ImageURLs    []string       `json:"image_urls" validate:"max=20,dive,url"`
}

type UpdateSubmissionRequest struct {
	BusinessName *string  `json:"business_name" validate:"omitempty,min=2,max=255"`
	ContactName  *string  `json:"contact_name" validate:"omitempty,max=255"`
	Email        *string  `json:"email" validate:"omitempty,email"`
	Phone        *string  `json:"phone" validate:"omitempty,phone"`
	Website      *string  `json:"website" validate:"omitempty,url"`
	Description  *string  `json:"description" validate:"omitempty,max=5000"`
	Categories   []string `json:"categories" validate:"omitempty,max=20,dive,min=2,max=50"`
	ImageURLs    []string `json:"image_urls" validate:"omitempty,max=20,dive,url"`
}

type ReplaceProductsRequest struct {
	Products []ProductInput `json:"products" validate:"max=200,dive"`
}

type SubmissionStatusRequest struct {
	Status models.SubmissionStatus `json:"status" validate:"required,oneof=approved rejected withdrawn"`
	Notes  string                  `json:"notes" validate:"max=2000"`
}

type CatalogFilter struct {
	MarketID *uuid.UUID
	Search   string
	Category string
}

// CatalogProduct is an available product of an approved vendor.
type CatalogProduct struct {
	SubmissionID uuid.UUID              `json:"submission_id"`
	MarketID     uuid.UUID              `json:"market_id"`
	BusinessName string                 `json:"business_name"`
	Product      models.EmbeddedProduct `json:"product"`
}

func NewSubmissionService(db *gorm.DB, email *EmailService, storage *StorageService) *SubmissionService {
	return &SubmissionService{db: db, email: email, storage: storage}
}

func (in ProductInput) toProduct() models.EmbeddedProduct {
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	return models.EmbeddedProduct{
		ID:          newProductID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       utils.RoundMoney(in.Price),
		Unit:        in.Unit,
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
		Available:   available,
	}
}

func newProductID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func toProducts(inputs []ProductInput) models.Products {
	products := make(models.Products, 0, len(inputs))
	for _, in := range inputs {
		products = append(products, in.toProduct())
	}
	return products
}

// Apply creates a pending application. A user holds at most one
// non-withdrawn application per market.
func (s *SubmissionService) Apply(ctx context.Context, userID uuid.UUID, req *CreateSubmissionRequest) (*models.Submission, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var market models.Market
	if err := s.db.WithContext(ctx).Preload("Organizer").First(&market, "id = ?", req.MarketID).Error; err != nil {
		return nil, notFoundOr(err, "market")
	}
	if market.Status != models.MarketStatusActive || !market.AcceptingVendors {
		return nil, fmt.Errorf("%w: %s is not accepting vendors", utils.ErrInvalidInput, market.Name)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ? AND market_id = ? AND status <> ?", userID, req.MarketID, models.SubmissionStatusWithdrawn).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: you already applied to %s", utils.ErrConflict, market.Name)
	}

	submission := &models.Submission{
		UserID:       userID,
		MarketID:     req.MarketID,
		BusinessName: strings.TrimSpace(req.BusinessName),
		ContactName:  req.ContactName,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		Website:      req.Website,
		Description:  req.Description,
		Categories:   pq.StringArray(normalizeCategories(req.Categories)),
		Products:     toProducts(req.Products),
		ImageURLs:    pq.StringArray(req.ImageURLs),
		Status:       models.SubmissionStatusPending,
	}
	if submission.ImageURLs == nil {
		submission.ImageURLs = pq.StringArray{}
	}

	if err := s.db.WithContext(ctx).Omit("User", "Market").Create(submission).Error; err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.email.SendSubmissionReceived(submission, &market, market.Organizer.Email)
	return submission, nil
}

func (s *SubmissionService) GetSubmission(ctx context.Context, userID uuid.UUID, role models.UserRole, id uuid.UUID) (*models.Submission, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.UserID == userID || role == models.UserRoleAdmin {
		return submission, nil
	}
	if role == models.UserRoleOrganizer && submission.Market.OrganizerID == userID {
		return submission, nil
	}
	if submission.Status == models.SubmissionStatusApproved {
		return submission, nil
	}
	return nil, fmt.Errorf("%w: you cannot view this application", utils.ErrForbidden)
}

func (s *SubmissionService) ListMine(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Submission, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Submission{}).Where("user_id = ?", userID)
	return s.list(query.Preload("Market"), params)
}

func (s *SubmissionService) ListForMarket(ctx context.Context, userID uuid.UUID, role models.UserRole, marketID uuid.UUID, params utils.PaginationParams) ([]models.Submission, int64, error) {
	if _, err := loadOwnedMarket(ctx, s.db, marketID, userID, role); err != nil {
		return nil, 0, err
	}
	query := s.db.WithContext(ctx).Model(&models.Submission{}).Where("market_id = ?", marketID)
	return s.list(query, params)
}

func (s *SubmissionService) list(query *gorm.DB, params utils.PaginationParams) ([]models.Submission, int64, error) {
	query = utils.ApplyStatusFilter(query, "status", params)
	if params.Search != "" {
		query = query.Where("LOWER(business_name) LIKE ?", "%"+strings.ToLower(params.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query = utils.ApplySort(query, params, utils.SubmissionSort, "created_at")
	query = utils.ApplyPagination(query, params)

	var submissions []models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch submissions: %w", err)
	}
	return submissions, total, nil
}

func (s *SubmissionService) UpdateSubmission(ctx context.Context, userID uuid.UUID, id uuid.UUID, req *UpdateSubmissionRequest) (*models.Submission, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	submission, err := s.editable(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.BusinessName != nil {
		submission.BusinessName = strings.TrimSpace(*req.BusinessName)
	}
	if req.ContactName != nil {
		submission.ContactName = *req.ContactName
	}
	if req.Email != nil {
		submission.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		submission.Phone = *req.Phone
	}
	if req.Website != nil {
		submission.Website = *req.Website
	}
	if req.Description != nil {
		submission.Description = *req.Description
	}
	if req.Categories != nil {
		submission.Categories = normalizeCategories(req.Categories)
	}
	if req.ImageURLs != nil {
		submission.ImageURLs = req.ImageURLs
	}

	// Products are written only by editProducts and order settlement.
	if err := s.db.WithContext(ctx).Omit("User", "Market", "Products").Save(submission).Error; err != nil {
		return nil, fmt.Errorf("failed to update submission: %w", err)
	}
	return submission, nil
}

func (s *SubmissionService) AddProduct(ctx context.Context, userID, id uuid.UUID, req *ProductInput) (*models.EmbeddedProduct, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	product := req.toProduct()
	if _, err := s.editProducts(ctx, userID, id, func(submission *models.Submission) error {
		submission.Products = append(submission.Products, product)
		return nil
	}); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *SubmissionService) UpdateProduct(ctx context.Context, userID, id uuid.UUID, productID string, req *UpdateProductRequest) (*models.EmbeddedProduct, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var updated models.EmbeddedProduct
	if _, err := s.editProducts(ctx, userID, id, func(submission *models.Submission) error {
		_, product := submission.Products.Find(productID)
		if product == nil {
			return fmt.Errorf("%w: product not found", utils.ErrNotFound)
		}
		ApplyProductUpdate(product, req)
		updated = *product
		return nil
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ApplyProductUpdate copies the set fields of req onto p.
func ApplyProductUpdate(p *models.EmbeddedProduct, req *UpdateProductRequest) {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = utils.RoundMoney(*req.Price)
	}
	if req.Unit != nil {
		p.Unit = *req.Unit
	}
	if req.Stock != nil {
		stock := *req.Stock
		p.Stock = &stock
	}
	if req.ClearStock {
		p.Stock = nil
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}
	if req.Available != nil {
		p.Available = *req.Available
	}
}

func (s *SubmissionService) RemoveProduct(ctx context.Context, userID, id uuid.UUID, productID string) error {
	_, err := s.editProducts(ctx, userID, id, func(submission *models.Submission) error {
		idx, _ := submission.Products.Find(productID)
		if idx < 0 {
			return fmt.Errorf("%w: product not found", utils.ErrNotFound)
		}
		submission.Products = append(submission.Products[:idx], submission.Products[idx+1:]...)
		return nil
	})
	return err
}

func (s *SubmissionService) ReplaceProducts(ctx context.Context, userID, id uuid.UUID, req *ReplaceProductsRequest) (*models.Submission, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	return s.editProducts(ctx, userID, id, func(submission *models.Submission) error {
		submission.Products = toProducts(req.Products)
		return nil
	})
}

func (s *SubmissionService) UploadImage(ctx context.Context, userID, id uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.Submission, error) {
	submission, err := s.editable(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.storage.ValidateImage(file); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}

	result, err := s.storage.UploadFile(ctx, file, header, s.storage.GetDefaultUploadOptions("vendors"))
	if err != nil {
		return nil, err
	}
	submission.ImageURLs = append(submission.ImageURLs, result.URL)
	if err := s.db.WithContext(ctx).Model(submission).Update("image_urls", submission.ImageURLs).Error; err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}
	return submission, nil
}

// ChangeStatus approves or rejects (market organizer) or withdraws (vendor)
// an application and emails the vendor.
func (s *SubmissionService) ChangeStatus(ctx context.Context, userID uuid.UUID, role models.UserRole, id uuid.UUID, req *SubmissionStatusRequest) (*models.Submission, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckStatusChange(submission, &submission.Market, userID, role, req.Status); err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{"status": req.Status}
	if req.Status == models.SubmissionStatusWithdrawn {
		submission.Status = req.Status
	} else {
		updates["review_notes"] = req.Notes
		updates["reviewed_by"] = userID
		updates["reviewed_at"] = now
		submission.Status = req.Status
		submission.ReviewNotes = req.Notes
		submission.ReviewedBy = &userID
		submission.ReviewedAt = &now
	}

	if err := s.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", submission.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update submission status: %w", err)
	}

	s.email.SendSubmissionStatusChanged(submission, &submission.Market)
	return submission, nil
}

// CheckStatusChange enforces who may move an application to next.
func CheckStatusChange(submission *models.Submission, market *models.Market, userID uuid.UUID, role models.UserRole, next models.SubmissionStatus) error {
	if submission.Status == next {
		return fmt.Errorf("%w: application is already %s", utils.ErrConflict, next)
	}
	if submission.Status == models.SubmissionStatusWithdrawn {
		return fmt.Errorf("%w: application was withdrawn", utils.ErrConflict)
	}

	switch next {
	case models.SubmissionStatusWithdrawn:
		if submission.UserID != userID {
			return fmt.Errorf("%w: only the applicant can withdraw", utils.ErrForbidden)
		}
	case models.SubmissionStatusApproved, models.SubmissionStatusRejected:
		if role != models.UserRoleAdmin && market.OrganizerID != userID {
			return fmt.Errorf("%w: only the market organizer can review applications", utils.ErrForbidden)
		}
	default:
		return fmt.Errorf("%w: unsupported status %s", utils.ErrInvalidInput, next)
	}
	return nil
}

func (s *SubmissionService) DeleteSubmission(ctx context.Context, userID uuid.UUID, role models.UserRole, id uuid.UUID) error {
	submission, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if submission.UserID != userID && role != models.UserRoleAdmin {
		return fmt.Errorf("%w: you cannot delete this application", utils.ErrForbidden)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Submission{}, "id = ?", submission.ID).Error; err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	return nil
}

// Catalog lists available products of approved vendors, sorted by vendor then
// product name.
func (s *SubmissionService) Catalog(ctx context.Context, filter CatalogFilter, params utils.PaginationParams) ([]CatalogProduct, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("status = ?", models.SubmissionStatusApproved)
	if filter.MarketID != nil {
		query = query.Where("market_id = ?", *filter.MarketID)
	}
	if filter.Category != "" {
		query = query.Where("? = ANY(categories)", strings.ToLower(filter.Category))
	}

	var submissions []models.Submission
	if err := query.Order("business_name ASC").Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	all := FlattenCatalog(submissions, filter.Search)
	total := int64(len(all))

	start, end := params.Window(len(all))
	return all[start:end], total, nil
}

func FlattenCatalog(submissions []models.Submission, search string) []CatalogProduct {
	search = strings.ToLower(strings.TrimSpace(search))
	out := []CatalogProduct{}
	for _, sub := range submissions {
		vendorMatch := search == "" || strings.Contains(strings.ToLower(sub.BusinessName), search)
		for _, p := range sub.Products {
			if !p.Available {
				continue
			}
			if !vendorMatch &&
				!strings.Contains(strings.ToLower(p.Name), search) &&
				!strings.Contains(strings.ToLower(p.Description), search) {
				continue
			}
			out = append(out, CatalogProduct{
				SubmissionID: sub.ID,
				MarketID:     sub.MarketID,
				BusinessName: sub.BusinessName,
				Product:      p,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BusinessName != out[j].BusinessName {
			return out[i].BusinessName < out[j].BusinessName
		}
		return out[i].Product.Name < out[j].Product.Name
	})
	return out
}

func (s *SubmissionService) load(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).Preload("Market").First(&submission, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "submission")
	}
	return &submission, nil
}

// editable loads a submission its owner may still change.
func (s *SubmissionService) editable(ctx context.Context, userID, id uuid.UUID) (*models.Submission, error) {
	return loadEditable(s.db.WithContext(ctx), userID, id)
}

func loadEditable(db *gorm.DB, userID, id uuid.UUID) (*models.Submission, error) {
	var submission models.Submission
	if err := db.First(&submission, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "submission")
	}
	if submission.UserID != userID {
		return nil, fmt.Errorf("%w: you do not own this application", utils.ErrForbidden)
	}
	if submission.Status == models.SubmissionStatusWithdrawn {
		return nil, fmt.Errorf("%w: application was withdrawn", utils.ErrConflict)
	}
	return &submission, nil
}

// editProducts applies edit to the owner's catalog with the row locked, the
// same lock a paid order takes to decrement stock.
func (s *SubmissionService) editProducts(ctx context.Context, userID, id uuid.UUID, edit func(*models.Submission) error) (*models.Submission, error) {
	var submission *models.Submission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		submission, err = loadEditable(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, id)
		if err != nil {
			return err
		}
		if err := edit(submission); err != nil {
			return err
		}
		if err := tx.Model(&models.Submission{}).Where("id = ?", submission.ID).
			Update("products", submission.Products).Error; err != nil {
			return fmt.Errorf("failed to save products: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

func normalizeCategories(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
