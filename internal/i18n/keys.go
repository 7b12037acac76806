// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthRegisterSuccess    = "auth.register_success"
	KeyAuthPasswordReset      = "auth.password_reset"
	KeyAuthResetEmailSent     = "auth.reset_email_sent"
	KeyAuthEmailVerified      = "auth.email_verified"

	// Users
	KeyUserProfileUpdated = "user.profile_updated"
	KeyUserNotFound       = "user.not_found"

	// Markets
	KeyMarketCreated  = "market.created"
	KeyMarketUpdated  = "market.updated"
	KeyMarketDeleted  = "market.deleted"
	KeyMarketNotFound = "market.not_found"

	// Submissions
	KeySubmissionCreated   = "submission.created"
	KeySubmissionUpdated   = "submission.updated"
	KeySubmissionDeleted   = "submission.deleted"
	KeySubmissionApproved  = "submission.approved"
	KeySubmissionRejected  = "submission.rejected"
	KeySubmissionWithdrawn = "submission.withdrawn"

	// Cart and orders
	KeyCartUpdated    = "cart.updated"
	KeyCartCleared    = "cart.cleared"
	KeyOrderCancelled = "order.cancelled"
	KeyOrderFulfilled = "order.fulfilled"

	// Payments
	KeyPaymentSuccess       = "payment.success"
	KeyPaymentPending       = "payment.pending"
	KeyPaymentFailed        = "payment.failed"
	KeyPaymentRefunded      = "payment.refunded"
	KeyPaymentMethodSaved   = "payment.method_saved"
	KeyPaymentMethodRemoved = "payment.method_removed"

	// Chat
	KeyMessageSent = "chat.message_sent"

	// Admin
	KeyAdminAccessDenied  = "admin.access_denied"
	KeyAdminInviteCreated = "admin.invite_created"
	KeyAdminUserUpdated   = "admin.user_updated"
	KeyCommissionsSettled = "admin.commissions_settled"
	KeyAddressDeleted     = "address.deleted"
	KeyFileUploadSuccess  = "file.upload_success"
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationRequired = "validation.required"
	KeyRateLimited        = "rate_limit.exceeded"
	KeyReportGenerated    = "report.generated"
)
