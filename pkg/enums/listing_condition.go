package enums

import "fmt"

// ListingCondition is the wear label a seller attaches to a listing.
type ListingCondition string

const (
	ListingConditionNew         ListingCondition = "new"
	ListingConditionLikeNew     ListingCondition = "like_new"
	ListingConditionLightlyUsed ListingCondition = "lightly_used"
	ListingConditionWellUsed    ListingCondition = "well_used"
)

var validListingConditions = []ListingCondition{
	ListingConditionNew,
	ListingConditionLikeNew,
	ListingConditionLightlyUsed,
	ListingConditionWellUsed,
}

// String implements fmt.Stringer.
func (c ListingCondition) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ListingCondition.
func (c ListingCondition) IsValid() bool {
	for _, candidate := range validListingConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseListingCondition converts raw input into a ListingCondition.
func ParseListingCondition(value string) (ListingCondition, error) {
	for _, candidate := range validListingConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing condition %q", value)
}
