package audithook

// Action constants for audit events.
const (
	// Creator actions
	ActionCreatorRegistered         = "creator.registered"
	ActionCreatorFeeUpdated         = "creator.fee_updated"
	ActionCreatorAutoRenewalDefault = "creator.auto_renewal_default"
	ActionCreatorWithdrawal         = "creator.withdrawal"

	// Subscription actions
	ActionSubscriptionStarted       = "subscription.started"
	ActionSubscriptionRenewed       = "subscription.renewed"
	ActionSubscriptionRenewalFailed = "subscription.renewal_failed"
	ActionSubscriptionCancelled     = "subscription.cancelled"
	ActionAutoRenewalCancelled      = "subscription.auto_renewal_cancelled"

	// Entitlement actions
	ActionEntitlementDenied = "entitlement.denied"
)

// Resource constants for audit events.
const (
	ResourceCreator      = "creator"
	ResourceSubscription = "subscription"
	ResourceEntitlement  = "entitlement"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
