package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/example/stayescrow/internal/models"
)

// ErrPropertyNotFound reports that a property store has no record for the id.
// Transport or server failures are returned as other errors.
var ErrPropertyNotFound = errors.New("property not found")

// PropertyView is the canonical shape of a property, whichever store it came from.
type PropertyView struct {
	ID                    string   `json:"id"`
	OwnerUserID           *string  `json:"userId"`
	Title                 string   `json:"title"`
	DailyPrice            float64  `json:"dailyPrice"`
	DepositAmount         float64  `json:"depositAmount"`
	IsNegotiable          bool     `json:"isNegotiable"`
	NegotiationPercentage *float64 `json:"negotiationPercentage"`
	MaxNegotiationPercent *int     `json:"maxNegotiationPercent"`
	DiscountEnabled       bool     `json:"discountEnabled"`
}

// OwnerID parses the owner user id into the numeric id used by the users table.
// ok is false when the property has no owner at all.
func (p *PropertyView) OwnerID() (id int64, ok bool, err error) {
	if p == nil || p.OwnerUserID == nil || strings.TrimSpace(*p.OwnerUserID) == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(strings.TrimSpace(*p.OwnerUserID), 10, 64)
	if err != nil {
		return 0, true, err
	}
	return id, true, nil
}

// TitleOr returns the title, or fallback when the property has none.
func (p *PropertyView) TitleOr(fallback string) string {
	if p == nil || strings.TrimSpace(p.Title) == "" {
		return fallback
	}
	return p.Title
}

// PropertyReader resolves a property id into its canonical view.
type PropertyReader interface {
	Property(ctx context.Context, id string) (*PropertyView, error)
}

// PropertyDatabaseService reads the local properties table.
type PropertyDatabaseService struct {
	db *gorm.DB
}

func NewPropertyDatabaseService(db *gorm.DB) *PropertyDatabaseService {
	return &PropertyDatabaseService{db: db}
}

func (s *PropertyDatabaseService) Property(ctx context.Context, id string) (*PropertyView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, businessError(CodeInvalidRequest, "property id cannot be empty")
	}

	var property models.Property
	if err := s.db.WithContext(ctx).First(&property, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, wrapBusinessError(CodeDatabaseError, err, "failed to fetch property %s from database: %v", id, err)
	}

	return viewFromModel(&property), nil
}

func viewFromModel(p *models.Property) *PropertyView {
	view := &PropertyView{
		ID:                    p.ID,
		Title:                 p.Title,
		DailyPrice:            p.DailyPrice,
		NegotiationPercentage: p.NegotiationPercentage,
		MaxNegotiationPercent: p.MaxNegotiationPercent,
	}
	if p.UserID != nil {
		owner := strings.TrimSpace(*p.UserID)
		view.OwnerUserID = &owner
	}
	if p.DepositAmount != nil {
		view.DepositAmount = *p.DepositAmount
	}
	switch {
	case p.MaxNegotiationPercent != nil:
		view.IsNegotiable = *p.MaxNegotiationPercent > 0
	case p.NegotiationPercentage != nil:
		view.IsNegotiable = *p.NegotiationPercentage > 0
	}
	return view
}

// CachedPropertyReader consults the local cache table first and falls back to
// the upstream property service when the cache has no row.
type CachedPropertyReader struct {
	local    PropertyReader
	upstream PropertyReader
}

// NewCachedPropertyReader composes the two stores; upstream may be nil.
func NewCachedPropertyReader(local, upstream PropertyReader) *CachedPropertyReader {
	return &CachedPropertyReader{local: local, upstream: upstream}
}

func (r *CachedPropertyReader) Property(ctx context.Context, id string) (*PropertyView, error) {
	view, err := r.local.Property(ctx, id)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, ErrPropertyNotFound) || r.upstream == nil {
		return nil, err
	}
	return r.upstream.Property(ctx, id)
}
