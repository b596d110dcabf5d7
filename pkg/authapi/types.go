package authapi

// Request and response bodies for the auth endpoints. Kept in their own
// package so other platform services and test clients can share them.

const (
	// StatusTwoFactorRequired marks a login response that needs a second
	// factor before a session is issued.
	StatusTwoFactorRequired = "2fa_required"

	// WarningMultipleActiveSessions is attached to a token response when
	// other unexpired sessions already exist for the account.
	WarningMultipleActiveSessions = "multiple_active_sessions"

	// DeliveryQueued and DeliveryUnconfirmed report the fate of an OTP
	// email dispatch. Unconfirmed means the code exists and is verifiable
	// but delivery could not be confirmed.
	DeliveryQueued      = "queued"
	DeliveryUnconfirmed = "unconfirmed"
)

// Two-factor methods accepted by the challenge completion endpoint.
const (
	MethodEmail = "email"
	MethodTOTP  = "totp"
)

type CaptchaResponse struct {
	CaptchaSessionID string `json:"captcha_session_id"`
	CaptchaCode      string `json:"captcha_code"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Identifier       string `json:"identifier"`
	Password         string `json:"password"`
	CaptchaSessionID string `json:"captcha_session_id"`
	CaptchaInput     string `json:"captcha_input"`
	RememberMe       bool   `json:"remember_me,omitempty"`
	Device           string `json:"device,omitempty"`
}

// TokenResponse is returned on successful login, 2FA completion, and
// refresh.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	Warnings     []string `json:"warnings,omitempty"`
}

// TwoFactorRequiredResponse is returned from login when the account has a
// second factor enabled.
type TwoFactorRequiredResponse struct {
	Status       string   `json:"status"` // always StatusTwoFactorRequired
	PreAuthToken string   `json:"pre_auth_token"`
	Methods      []string `json:"methods"`
	Delivery     string   `json:"delivery,omitempty"`
}

type TwoFactorCompleteRequest struct {
	PreAuthToken string `json:"pre_auth_token"`
	Code         string `json:"code"`
	Method       string `json:"method,omitempty"` // defaults to email
}

type TwoFactorResendRequest struct {
	PreAuthToken string `json:"pre_auth_token"`
}

type PasswordResetInitiateRequest struct {
	Identifier string `json:"identifier"`
}

type PasswordResetCompleteRequest struct {
	Identifier  string `json:"identifier"`
	OTPCode     string `json:"otp_code"`
	NewPassword string `json:"new_password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AcceptedResponse acknowledges fire-and-forget style operations. Delivery
// is set on OTP-sending operations.
type AcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	Delivery string `json:"delivery,omitempty"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorDisableRequest re-verifies the password before turning the second
// factor off.
type TwoFactorDisableRequest struct {
	Password string `json:"password"`
}

type TOTPEnrollResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"` // otpauth:// URL for QR rendering
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
}
