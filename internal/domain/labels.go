package domain

// Human returns the display form of a growth label.
func (l GrowthLabel) Human() string {
	switch l {
	case GrowthHyper:
		return "hyper growth"
	case GrowthEarningsLed:
		return "earnings-led growth"
	case GrowthRevenueLed:
		return "revenue-led growth"
	case GrowthSteady:
		return "steady growth"
	case GrowthDoubleDecline:
		return "double decline"
	case GrowthRevenueDecline:
		return "revenue decline"
	case GrowthLow:
		return "low growth"
	default:
		return "unknown"
	}
}

// Human returns the display form of a recommendation tier.
func (t Tier) Human() string {
	switch t {
	case TierStrongBuy:
		return "STRONG BUY"
	case TierBuy:
		return "BUY"
	case TierHold:
		return "HOLD"
	case TierAvoid:
		return "AVOID"
	default:
		return string(t)
	}
}

// Stars returns the tier's star rating for terminal reports.
func (t Tier) Stars() string {
	switch t {
	case TierStrongBuy:
		return "***"
	case TierBuy:
		return "**-"
	case TierHold:
		return "*--"
	default:
		return "---"
	}
}
