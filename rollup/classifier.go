package rollup

import "storepulse/api/models"

// stepRank orders checkout steps. review and thank_you rank with payment,
// unknown below contact.
func stepRank(step string) int {
	switch step {
	case models.StepContact:
		return 1
	case models.StepShipping:
		return 2
	case models.StepPayment, models.StepReview, models.StepThankYou:
		return 3
	}
	return 0
}

// Classify maps a summary to its funnel stage; first matching rule wins.
// The checkout rule reads the furthest step reached so the stage never moves
// back when a shopper returns to an earlier checkout page.
func Classify(s *models.SessionSummary) models.Stage {
	switch {
	case s.PurchaseEvents > 0:
		return models.StagePurchase
	case s.CheckoutStartedEvents > 0:
		switch stepRank(models.Deref(s.FurthestCheckoutStep)) {
		case 3:
			return models.StageCheckoutPayment
		case 2:
			return models.StageCheckoutShipping
		}
		return models.StageCheckoutContact
	case s.CartEvents > 0:
		return models.StageCart
	case s.ATCEvents > 0:
		return models.StageATC
	case s.ProductViews > 0:
		return models.StageProduct
	}
	return models.StageLanding
}
