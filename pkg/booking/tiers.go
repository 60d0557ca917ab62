package booking

import (
	"fmt"
	"sort"
)

const (
	basisPointsWhole   = 10_000
	pointsPerCurrency  = 10
	centsPerCurrency   = 100
	pointsDenominator  = basisPointsWhole * centsPerCurrency / pointsPerCurrency
	maxDiscountBasisPt = basisPointsWhole
)

// Tier is one loyalty level: reached at MinPoints, granting DiscountBasisPoints off the price.
type Tier struct {
	Name                string
	MinPoints           Points
	DiscountBasisPoints int64
}

// TierTable is the ordered loyalty configuration. Tiers are derived from points only.
type TierTable struct {
	tiers []Tier
}

// DefaultTierTable returns the platform tier breakpoints.
func DefaultTierTable() TierTable {
	return TierTable{tiers: []Tier{
		{Name: "Standard", MinPoints: 0, DiscountBasisPoints: 0},
		{Name: "Bronze", MinPoints: 1_000, DiscountBasisPoints: 500},
		{Name: "Silver", MinPoints: 5_000, DiscountBasisPoints: 1_000},
		{Name: "Gold", MinPoints: 10_000, DiscountBasisPoints: 1_500},
		{Name: "Platinum", MinPoints: 25_000, DiscountBasisPoints: 2_000},
	}}
}

// NewTierTable validates tiers: the lowest must start at zero, thresholds must be unique and
// discounts must stay within [0, 100%].
func NewTierTable(tiers []Tier) (TierTable, error) {
	if len(tiers) == 0 {
		return TierTable{}, fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(left, right int) bool {
		return sorted[left].MinPoints < sorted[right].MinPoints
	})
	if sorted[0].MinPoints != 0 {
		return TierTable{}, fmt.Errorf("%w: lowest tier must start at 0 points", ErrInvalidTierTable)
	}
	for index, tier := range sorted {
		if tier.Name == "" {
			return TierTable{}, fmt.Errorf("%w: tier %d has no name", ErrInvalidTierTable, index)
		}
		if tier.DiscountBasisPoints < 0 || tier.DiscountBasisPoints > maxDiscountBasisPt {
			return TierTable{}, fmt.Errorf("%w: tier %s discount out of range", ErrInvalidTierTable, tier.Name)
		}
		if index > 0 && sorted[index-1].MinPoints == tier.MinPoints {
			return TierTable{}, fmt.Errorf("%w: duplicate threshold %d", ErrInvalidTierTable, tier.MinPoints)
		}
	}
	return TierTable{tiers: sorted}, nil
}

// TierFor returns the highest tier whose threshold points reach.
func (table TierTable) TierFor(points Points) Tier {
	current := table.tiers[0]
	for _, tier := range table.tiers[1:] {
		if points < tier.MinPoints {
			break
		}
		current = tier
	}
	return current
}

// NextTier returns the tier after the one points currently reach.
func (table TierTable) NextTier(points Points) (Tier, bool) {
	for _, tier := range table.tiers {
		if tier.MinPoints > points {
			return tier, true
		}
	}
	return Tier{}, false
}

// ApplyDiscount returns the price after the tier discount, rounded half up to a cent.
func (tier Tier) ApplyDiscount(price AmountCents) AmountCents {
	return AmountCents(scaleRounded(price.Int64(), basisPointsWhole-tier.DiscountBasisPoints, basisPointsWhole))
}

// PointsFor returns round(effectivePrice * 10), computed from the unrounded discounted price.
func (tier Tier) PointsFor(price AmountCents) Points {
	return Points(scaleRounded(price.Int64(), basisPointsWhole-tier.DiscountBasisPoints, pointsDenominator))
}

// scaleRounded returns round(value*factor/denominator) for non-negative value and
// 0 <= factor <= denominator without forming the full product.
func scaleRounded(value int64, factor int64, denominator int64) int64 {
	whole, remainder := value/denominator, value%denominator
	return whole*factor + (remainder*factor+denominator/2)/denominator
}
