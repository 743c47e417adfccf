// Package cart keeps a customer's pending product lines until checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/money"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 99

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	AddItem(ctx context.Context, input AddItemInput) (*models.CartItem, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
	ListCart(ctx context.Context, userID uuid.UUID) (*View, error)
}

// AddItemInput adds Quantity units of a product, merging with an existing line.
type AddItemInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
}

// View is the cart grouped by selling organization.
type View struct {
	Groups    []Group         `json:"groups"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
}

type Group struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	Lines          []Line          `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ItemCount      int             `json:"item_count"`
}

type Line struct {
	ProductID     uuid.UUID           `json:"product_id"`
	ProductName   string              `json:"product_name"`
	InventoryType enums.InventoryType `json:"inventory_type"`
	Quantity      int                 `json:"quantity"`
	UnitPrice     decimal.Decimal     `json:"unit_price"`
	LineTotal     decimal.Decimal     `json:"line_total"`
	Available     bool                `json:"available"`
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo: repo,
		tx:   tx,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) AddItem(ctx context.Context, input AddItemInput) (*models.CartItem, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var saved *models.CartItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		existing, err := repo.FindItem(ctx, input.UserID, input.ProductID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		quantity := input.Quantity
		if existing != nil {
			quantity += existing.Quantity
		}
		if quantity > MaxQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity cannot exceed %d", MaxQuantity))
		}
		if product.InventoryType == enums.InventoryTypeStock && quantity > product.InventoryCount {
			return pkgerrors.New(pkgerrors.CodeConflict, "not enough stock").
				WithDetails(map[string]any{"available": product.InventoryCount})
		}

		if existing != nil {
			if err := repo.UpdateQuantity(ctx, existing.ID, quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			existing.Quantity = quantity
			existing.Product = product
			saved = existing
			return nil
		}

		now := s.now()
		item := &models.CartItem{
			ID:        uuid.New(),
			UserID:    input.UserID,
			ProductID: product.ID,
			Quantity:  quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
		item.Product = product
		saved = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	deleted, err := s.repo.DeleteItem(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

func (s *service) ListCart(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.repo.ListItems(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	return BuildView(items), nil
}

// BuildView prices cart lines and groups them by organization. Lines whose
// product is gone are listed as unavailable and excluded from totals.
func BuildView(items []models.CartItem) *View {
	view := &View{Groups: []Group{}, Subtotal: decimal.Zero}
	index := map[uuid.UUID]int{}
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		p := item.Product
		line := Line{
			ProductID:     p.ID,
			ProductName:   p.Name,
			InventoryType: p.InventoryType,
			Quantity:      item.Quantity,
			UnitPrice:     p.Price,
			LineTotal:     money.Round2(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))),
			Available:     !p.IsDeleted && (p.InventoryType != enums.InventoryTypeStock || p.InventoryCount >= item.Quantity),
		}

		i, ok := index[p.OrganizationID]
		if !ok {
			view.Groups = append(view.Groups, Group{OrganizationID: p.OrganizationID, Subtotal: decimal.Zero})
			i = len(view.Groups) - 1
			index[p.OrganizationID] = i
		}
		g := &view.Groups[i]
		g.Lines = append(g.Lines, line)
		if line.Available {
			g.Subtotal = g.Subtotal.Add(line.LineTotal)
			g.ItemCount += line.Quantity
		}
	}
	for _, g := range view.Groups {
		view.Subtotal = view.Subtotal.Add(g.Subtotal)
		view.ItemCount += g.ItemCount
	}
	sort.SliceStable(view.Groups, func(a, b int) bool {
		return view.Groups[a].OrganizationID.String() < view.Groups[b].OrganizationID.String()
	})
	return view
}
