package normalizer

import (
	"strings"

	"storepulse/api/utils"
)

// Kind is the canonical bucket an event name resolves to.
type Kind int

const (
	KindOther Kind = iota
	KindPageView
	KindProductView
	KindATC
	KindCartView
	KindCheckoutStart
	KindPurchase
	KindRageClick
	KindDeadClick
	KindJSError
	KindFormInvalid
	KindScroll
)

// Canonical event names written by the normalizer for known aliases.
const (
	EventPageViewed      = "page_viewed"
	EventProductViewed   = "product_viewed"
	EventAddedToCart     = "product_added_to_cart"
	EventCartViewed      = "cart_viewed"
	EventCheckoutStarted = "checkout_started"
	EventCheckoutDone    = "checkout_completed"
	EventRageClick       = "rage_click"
	EventDeadClick       = "dead_click"
	EventJSError         = "js_error"
	EventFormInvalid     = "form_invalid"
	EventScrollDepth     = "scroll_depth"
)

var aliases = map[string]Kind{
	"page_viewed": KindPageView,
	"page_view":   KindPageView,

	"view_item":      KindProductView,
	"product_viewed": KindProductView,

	"product_added_to_cart": KindATC,
	"add_to_cart":           KindATC,
	"added_to_cart":         KindATC,
	"cart_add":              KindATC,
	"atc":                   KindATC,
	"si_atc_success":        KindATC,

	"cart_viewed": KindCartView,
	"view_cart":   KindCartView,

	"checkout_started":   KindCheckoutStart,
	"checkout_initiated": KindCheckoutStart,
	"begin_checkout":     KindCheckoutStart,

	"checkout_completed": KindPurchase,
	"purchase":           KindPurchase,
	"order_completed":    KindPurchase,
	"order_placed":       KindPurchase,

	"rage_click":    KindRageClick,
	"si_rage_click": KindRageClick,

	"dead_click":    KindDeadClick,
	"si_dead_click": KindDeadClick,

	"js_error":         KindJSError,
	"si_js_error":      KindJSError,
	"javascript_error": KindJSError,
	"error":            KindJSError,

	"form_invalid":       KindFormInvalid,
	"si_form_invalid":    KindFormInvalid,
	"form_field_invalid": KindFormInvalid,
	"invalid_field":      KindFormInvalid,

	"scroll_depth":    KindScroll,
	"si_scroll_depth": KindScroll,
	"scroll":          KindScroll,
}

var canonical = map[Kind]string{
	KindPageView:      EventPageViewed,
	KindProductView:   EventProductViewed,
	KindATC:           EventAddedToCart,
	KindCartView:      EventCartViewed,
	KindCheckoutStart: EventCheckoutStarted,
	KindPurchase:      EventCheckoutDone,
	KindRageClick:     EventRageClick,
	KindDeadClick:     EventDeadClick,
	KindJSError:       EventJSError,
	KindFormInvalid:   EventFormInvalid,
	KindScroll:        EventScrollDepth,
}

var labels = map[Kind]string{
	KindPageView:      "Page view",
	KindProductView:   "Product view",
	KindATC:           "Add to cart",
	KindCartView:      "Cart view",
	KindCheckoutStart: "Checkout started",
	KindPurchase:      "Purchase",
	KindRageClick:     "Rage click",
	KindDeadClick:     "Dead click",
	KindJSError:       "JS error",
	KindFormInvalid:   "Form invalid",
	KindScroll:        "Scroll depth",
}

// step hints carried by event names that are otherwise pass-through.
var nameStepHints = map[string]string{
	"checkout_contact_info_submitted":  "contact",
	"checkout_address_info_submitted":  "shipping",
	"checkout_shipping_info_submitted": "shipping",
	"payment_info_submitted":           "payment",
}

// Classify resolves an event name (any case) to its kind. Unknown names are
// KindOther.
func Classify(name string) Kind {
	return aliases[strings.ToLower(strings.TrimSpace(name))]
}

// CanonicalName lowercases name and maps known aliases to the canonical
// spelling. Unknown names pass through lowercased.
func CanonicalName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := canonical[aliases[n]]; ok {
		return c
	}
	return n
}

// Label is the display label used at query time. Unknown names fall back to
// title case.
func Label(name string) string {
	if l, ok := labels[Classify(name)]; ok {
		return l
	}
	return utils.TitleCase(name)
}

// IsFriction reports whether name is one of the clarity signal events.
func IsFriction(name string) bool {
	switch Classify(name) {
	case KindRageClick, KindDeadClick, KindJSError, KindFormInvalid, KindScroll:
		return true
	}
	return false
}
