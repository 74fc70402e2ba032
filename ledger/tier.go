package ledger

// TierThresholds are the visit counts at which a category badge reaches tiers
// 1 through 5.
var TierThresholds = [...]int64{5, 25, 50, 100, 250}

// MaxTier is the highest badge tier.
const MaxTier = len(TierThresholds)

var tierNames = [MaxTier + 1]string{"", "Bronze", "Silver", "Gold", "Diamond", "Platinum"}

// TierForVisits returns the badge tier earned with v visits: the highest i such
// that v >= TierThresholds[i-1], or 0.
func TierForVisits(v int64) int {
	tier := 0
	for i, threshold := range TierThresholds {
		if v >= threshold {
			tier = i + 1
		}
	}
	return tier
}

// TierName returns the display name of a tier, or "" for tier 0 and unknown tiers.
func TierName(tier int) string {
	if tier < 0 || tier > MaxTier {
		return ""
	}
	return tierNames[tier]
}

// NextThreshold returns the visit count at which the next tier is reached. ok is
// false once the top tier has been earned.
func NextThreshold(v int64) (next int64, ok bool) {
	for _, threshold := range TierThresholds {
		if v < threshold {
			return threshold, true
		}
	}
	return 0, false
}
