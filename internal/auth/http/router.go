package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/jwtx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	AuthService    *service.AuthService
	CaptchaService *service.CaptchaService
	SessionService *service.SessionService
	UserService    *service.UserService
	ResetService   *service.ResetService
	SetupService   *service.SetupService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerAccount()
	r.registerTwoFactorSetup()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	captchaHandler := &CaptchaHandler{CaptchaService: r.CaptchaService}
	loginHandler := &LoginHandler{AuthService: r.AuthService}
	twoFactorHandler := &TwoFactorHandler{AuthService: r.AuthService}
	tokenHandler := &TokenHandler{SessionService: r.SessionService}

	// GET /captcha - every login fetches one, so lenient by IP
	r.Mux.Handle("GET /v1/auth/captcha",
		httpx.Chain(captchaHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /login - strict rate limit by IP (credential attempts)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(loginHandler.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /login/2fa - strict rate limit by IP (code guessing)
	r.Mux.Handle("POST /v1/auth/login/2fa",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleComplete),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /login/2fa/resend - strict; the per-code cooldown also applies
	r.Mux.Handle("POST /v1/auth/login/2fa/resend",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleResend),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /token/refresh - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/token/refresh",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /logout - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAccount() {
	registerHandler := &RegisterHandler{UserService: r.UserService}
	resetHandler := &PasswordResetHandler{ResetService: r.ResetService}

	// POST /register - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /password-reset/initiate - strict (sends email)
	r.Mux.Handle("POST /v1/auth/password-reset/initiate",
		httpx.Chain(http.HandlerFunc(resetHandler.HandleInitiate),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /password-reset/complete - strict (code guessing)
	r.Mux.Handle("POST /v1/auth/password-reset/complete",
		httpx.Chain(http.HandlerFunc(resetHandler.HandleComplete),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTwoFactorSetup() {
	h := &TwoFactorSetupHandler{SetupService: r.SetupService}

	secure := func(next http.HandlerFunc) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier), // verify JWT (iss/exp)
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/auth/2fa/enable", secure(h.HandleEnable))
	r.Mux.Handle("POST /v1/auth/2fa/confirm", secure(h.HandleConfirm))
	r.Mux.Handle("POST /v1/auth/2fa/disable", secure(h.HandleDisable))
	r.Mux.Handle("POST /v1/auth/2fa/totp/enroll", secure(h.HandleTOTPEnroll))
	r.Mux.Handle("POST /v1/auth/2fa/totp/confirm", secure(h.HandleTOTPConfirm))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.buildVersion, r.startTime),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.store, r.buildVersion, r.startTime),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

// writeServiceError maps service-layer sentinels onto the wire error shapes.
// Anything unmapped is logged and surfaced as a 500.
func writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	log := slogx.FromContext(req.Context())

	var rl *service.RateLimitedError
	switch {
	case errors.As(err, &rl):
		authapi.NewRateLimited(rl.WaitSeconds()).WriteError(w)
	case errors.Is(err, service.ErrCaptchaInvalid):
		authapi.ErrCaptchaInvalid.WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authapi.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrNoActiveCode):
		authapi.ErrNoActiveCode.WriteError(w)
	case errors.Is(err, service.ErrInvalidOTP):
		authapi.ErrInvalidOTP.WriteError(w)
	case errors.Is(err, service.ErrInvalidPreAuth), errors.Is(err, service.ErrTooManyAttempts):
		authapi.ErrInvalidPreAuthToken.WriteError(w)
	case errors.Is(err, service.ErrInvalidRefresh):
		authapi.ErrInvalidRefreshToken.WriteError(w)
	case errors.Is(err, service.ErrUserExists), errors.Is(err, service.ErrTwoFactorState):
		authapi.ErrConflict.WriteError(w)
	case errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword):
		authapi.ErrInvalidRequest.WriteError(w)
	default:
		log.Error("unhandled service error", "err", err)
		authapi.ErrServerError.WriteError(w)
	}
}
