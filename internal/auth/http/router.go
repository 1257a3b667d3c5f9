package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/domain"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/internal/auth/store"
	"github.com/factstofaith/gigglefits-sub006/pkg/clockx"
	"github.com/factstofaith/gigglefits-sub006/pkg/httpx"
	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
	"github.com/factstofaith/gigglefits-sub006/pkg/slogx"

	_ "github.com/factstofaith/gigglefits-sub006/api/platform" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	clock        clockx.Clock
	store        store.Store

	UserService       *service.UserService
	InvitationService *service.InvitationService
	MFAService        *service.MFAService
	OAuthService      *service.OAuthService

	// InvitationTTLHours is the default lifetime of new invitations.
	InvitationTTLHours int
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	clock clockx.Clock,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:                http.NewServeMux(),
		keys:               keys,
		verifier:           verifier,
		buildVersion:       buildVersion,
		startTime:          time.Now(),
		store:              st,
		clock:              clock,
		logger:             logger,
		InvitationTTLHours: DefaultInvitationTTLHours,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerInvitations()
	r.registerOAuth()
	r.registerAuth()
	r.registerUsers()
	r.registerMFA()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Platform Identity API
//	@version		0.1.0
//	@description	Invitation-based onboarding with password or OAuth acceptance, TOTP multi-factor authentication and recovery codes.
//	@description
//	@description				Access tokens are EdDSA (Ed25519) JWTs and can be verified with the JWKS endpoint.
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// admin wraps h for callers holding scope.
func (r *Router) admin(h http.HandlerFunc, scope string) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(scope),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)
}

// bearer wraps h for any authenticated caller.
func (r *Router) bearer(h http.Handler, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(limit),
	)
}

func (r *Router) registerInvitations() {
	h := &InvitationsHandler{
		Invitations:     r.InvitationService,
		Clock:           r.clock,
		DefaultTTLHours: r.InvitationTTLHours,
	}

	r.Mux.Handle("POST /invitations", r.admin(h.HandleCreate, domain.ScopeAdminWrite))
	r.Mux.Handle("GET /invitations", r.admin(h.HandleList, domain.ScopeAdminRead))
	r.Mux.Handle("DELETE /invitations/{id}", r.admin(h.HandleRevoke, domain.ScopeAdminWrite))

	// Token lookups are public; limit by IP to slow enumeration.
	r.Mux.Handle("GET /invitations/verify/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /invitations/accept",
		httpx.Chain(http.HandlerFunc(h.HandleAccept),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerOAuth() {
	h := &OAuthHandler{OAuth: r.OAuthService, Clock: r.clock}

	r.Mux.Handle("GET /invitations/oauth/{provider}/authorize",
		httpx.Chain(http.HandlerFunc(h.HandleAuthorize),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /invitations/oauth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /invitations/oauth/{provider}/revocation",
		r.admin(h.HandleRevocation, domain.ScopeAdminWrite))
}

func (r *Router) registerAuth() {
	h := &LoginHandler{Users: r.UserService, Clock: r.clock}

	// Keyed by IP and email.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /auth/login/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleMFA),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "user_id"),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UserInfoHandler{Users: r.UserService}

	r.Mux.Handle("GET /users/me", httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeProfileRead),
		httpx.RateLimitByUser(httpx.LenientLimit),
	))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFA: r.MFAService}

	r.Mux.Handle("POST /users/mfa/enroll", r.bearer(http.HandlerFunc(h.HandleEnroll), httpx.ModerateLimit))
	r.Mux.Handle("POST /users/mfa/verify", r.bearer(http.HandlerFunc(h.HandleVerify), httpx.StrictLimit))
	r.Mux.Handle("POST /users/mfa/disable", r.bearer(http.HandlerFunc(h.HandleDisable), httpx.ModerateLimit))
	r.Mux.Handle("GET /users/mfa/status", r.bearer(http.HandlerFunc(h.HandleStatus), httpx.LenientLimit))
	r.Mux.Handle("GET /users/mfa/recovery-codes", r.bearer(http.HandlerFunc(h.HandleRecoveryStatus), httpx.LenientLimit))
	r.Mux.Handle("POST /users/mfa/recovery-codes/regenerate", r.bearer(http.HandlerFunc(h.HandleRegenerate), httpx.ModerateLimit))
	r.Mux.Handle("POST /users/mfa/recovery-codes/verify", r.bearer(http.HandlerFunc(h.HandleRecoveryVerify), httpx.StrictLimit))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Users: r.UserService, MFA: r.MFAService}

	r.Mux.Handle("POST /admin/users/{id}/mfa/reset", r.admin(h.HandleResetMFA, domain.ScopeAdminWrite))
	r.Mux.Handle("DELETE /admin/users/{id}", r.admin(h.HandleDeleteUser, domain.ScopeAdminWrite))
	r.Mux.Handle("GET /admin/mfa/settings", r.admin(h.HandleGetSettings, domain.ScopeAdminRead))
	r.Mux.Handle("PUT /admin/mfa/settings", r.admin(h.HandlePutSettings, domain.ScopeAdminWrite))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
