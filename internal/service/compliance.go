package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ComplianceLine struct {
	ProductName        string
	SellerJurisdiction string
	Controlled         bool
}

type ClassifyInput struct {
	Lines             []ComplianceLine
	Subtotal          decimal.Decimal // pre-tax: product + shipping + packing
	BuyerJurisdiction string
	HomeJurisdiction  string
	Threshold         decimal.Decimal
}

type Classification struct {
	Type    model.OrderType
	Reasons []string
}

func (c Classification) RequiresApproval() bool {
	return c.Type == model.OrderTypeRequest
}

// Classify decides whether a checkout can be paid straight away. Rules are
// independent; each one that fires adds a reason.
func Classify(in ClassifyInput) Classification {
	result := Classification{Type: model.OrderTypeDirect}

	if in.Subtotal.GreaterThanOrEqual(in.Threshold) {
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"order subtotal %s reaches the high-value threshold of %s",
			in.Subtotal.StringFixed(2), in.Threshold.StringFixed(2),
		))
	}

	buyerHome := IsHome(in.BuyerJurisdiction, in.HomeJurisdiction)
	for _, line := range in.Lines {
		if !line.Controlled {
			continue
		}
		sellerHome := IsHome(line.SellerJurisdiction, in.HomeJurisdiction)
		switch {
		case sellerHome:
			result.Reasons = append(result.Reasons, fmt.Sprintf(
				"%s is controlled and ships from %s; export clearance required",
				line.ProductName, in.HomeJurisdiction,
			))
		case buyerHome:
			result.Reasons = append(result.Reasons, fmt.Sprintf(
				"%s is controlled and is imported into %s; import approval required",
				line.ProductName, in.HomeJurisdiction,
			))
		}
	}

	if len(result.Reasons) > 0 {
		result.Type = model.OrderTypeRequest
	}
	return result
}

type ComplianceService interface {
	ClassifyQuote(ctx context.Context, quote *Quote) (Classification, error)
	IsControlledCategory(ctx context.Context, categoryID uint64) (bool, error)
}

type complianceServiceImpl struct {
	referenceRepo repository.ReferenceRepository
	settings      SettingsService
}

func NewComplianceService(referenceRepo repository.ReferenceRepository, settings SettingsService) ComplianceService {
	return &complianceServiceImpl{
		referenceRepo: referenceRepo,
		settings:      settings,
	}
}

// ClassifyQuote resolves controlled flags and seller jurisdictions for the
// quoted lines, then classifies.
func (s *complianceServiceImpl) ClassifyQuote(ctx context.Context, quote *Quote) (Classification, error) {
	home := s.settings.HomeJurisdiction(ctx)
	walker := newCategoryWalker(ctx, s.referenceRepo)

	var lines []ComplianceLine
	for _, group := range quote.Groups {
		seller := group.VendorCountry
		if group.VendorID == nil {
			seller = home
		}
		for _, line := range group.Lines {
			controlled := false
			if line.CategoryID != nil {
				var err error
				controlled, err = walker.controlled(*line.CategoryID)
				if err != nil {
					return Classification{}, fmt.Errorf("resolve category %d: %w", *line.CategoryID, err)
				}
			}
			lines = append(lines, ComplianceLine{
				ProductName:        line.Name,
				SellerJurisdiction: seller,
				Controlled:         controlled,
			})
		}
	}

	return Classify(ClassifyInput{
		Lines:             lines,
		Subtotal:          quote.Subtotal,
		BuyerJurisdiction: quote.BuyerCountry,
		HomeJurisdiction:  home,
		Threshold:         s.settings.HighValueThreshold(ctx),
	}), nil
}

func (s *complianceServiceImpl) IsControlledCategory(ctx context.Context, categoryID uint64) (bool, error) {
	return newCategoryWalker(ctx, s.referenceRepo).controlled(categoryID)
}

// categoryWalker answers "is this category or any ancestor controlled" and
// remembers answers for the life of one classification.
type categoryWalker struct {
	ctx  context.Context
	repo repository.ReferenceRepository
	memo map[uint64]bool
}

func newCategoryWalker(ctx context.Context, repo repository.ReferenceRepository) *categoryWalker {
	return &categoryWalker{
		ctx:  ctx,
		repo: repo,
		memo: make(map[uint64]bool),
	}
}

func (w *categoryWalker) controlled(categoryID uint64) (bool, error) {
	if v, ok := w.memo[categoryID]; ok {
		return v, nil
	}

	var path []uint64
	seen := make(map[uint64]struct{})
	result := false
	current := &categoryID
	for current != nil {
		id := *current
		if v, ok := w.memo[id]; ok {
			result = v
			break
		}
		if _, ok := seen[id]; ok {
			break
		}
		seen[id] = struct{}{}
		path = append(path, id)

		category, err := w.repo.FindCategory(w.ctx, nil, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return false, err
		}
		if category.Controlled {
			result = true
			break
		}
		current = category.ParentID
	}

	for _, id := range path {
		w.memo[id] = result
	}
	return result, nil
}
