package enums

// NotificationLevel is the severity shown on a transient notification.
type NotificationLevel string

const (
	NotificationLevelSuccess NotificationLevel = "success"
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelWarning NotificationLevel = "warning"
	NotificationLevelError   NotificationLevel = "error"
)

// NotificationKind groups notifications by the feature that raised them.
type NotificationKind string

const (
	NotificationKindCart         NotificationKind = "cart"
	NotificationKindWishlist     NotificationKind = "wishlist"
	NotificationKindPromo        NotificationKind = "promo"
	NotificationKindSync         NotificationKind = "sync"
	NotificationKindAuthRequired NotificationKind = "auth_required"
)

// String implements fmt.Stringer.
func (n NotificationLevel) String() string {
	return string(n)
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}
