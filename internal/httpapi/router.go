package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthAuthsvc "github.com/reauth/reauth/internal/authsvc"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthEventbus "github.com/reauth/reauth/internal/eventbus"
	reauthFlow "github.com/reauth/reauth/internal/flow"
	reauthOidcsvc "github.com/reauth/reauth/internal/oidcsvc"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router wires every spec §6 path onto the service layer. It holds no
// state of its own beyond what the services/repositories it was built
// from already own.
type Router struct {
	realms    *reauthRepository.RealmRepository
	users     *reauthRepository.UserRepository
	sessions  *reauthRepository.SessionRepository
	flows     *reauthRepository.FlowRepository
	webhooks  *reauthRepository.WebhookRepository
	oidc       *reauthOidcsvc.Service
	auth       *reauthAuthsvc.Service
	executor   *reauthFlow.Executor
	keys       *reauthOidcsvc.KeyManager
	publisher  *reauthEventbus.Publisher
	dispatcher *reauthEventbus.Dispatcher
	logger     *slog.Logger
}

// New builds a Router over the already-constructed service layer (spec
// §6's external-interface table is the complete set of routes it
// exposes).
func New(
	realms *reauthRepository.RealmRepository,
	users *reauthRepository.UserRepository,
	sessions *reauthRepository.SessionRepository,
	flows *reauthRepository.FlowRepository,
	webhooks *reauthRepository.WebhookRepository,
	oidc *reauthOidcsvc.Service,
	auth *reauthAuthsvc.Service,
	executor *reauthFlow.Executor,
	keys *reauthOidcsvc.KeyManager,
	publisher *reauthEventbus.Publisher,
	dispatcher *reauthEventbus.Dispatcher,
	logger *slog.Logger,
) *Router {
	return &Router{
		realms: realms, users: users, sessions: sessions, flows: flows, webhooks: webhooks,
		oidc: oidc, auth: auth, executor: executor, keys: keys,
		publisher: publisher, dispatcher: dispatcher, logger: logger,
	}
}

// Routes mounts the full surface under path prefix /api (spec §6 "HTTP
// surface (path prefix /api)").
func (rt *Router) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/realms/{realm}", func(r chi.Router) {
		r.Use(rt.realmCtx)

		r.Route("/oidc", func(r chi.Router) {
			r.Get("/authorize", rt.authorize)
			r.Post("/token", rt.token)
			r.Get("/.well-known/jwks.json", rt.jwks)
			r.Get("/.well-known/openid-configuration", rt.discovery)
			r.Get("/userinfo", rt.userinfo)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", rt.showLogin)
			r.Post("/login/execute", rt.executeLogin)
			r.Post("/refresh", rt.refresh)
			r.Post("/logout", rt.logout)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", rt.listWebhooks)
			r.Post("/", rt.createWebhook)
			r.Get("/{id}", rt.getWebhook)
			r.Put("/{id}", rt.updateWebhook)
			r.Post("/{id}/test", rt.testWebhook)
		})
	})

	return r
}

// recoverer mirrors chi/middleware.Recoverer but renders spec §7's error
// envelope instead of a bare 500, so a node panic never leaks a stack
// trace to the client.
func (rt *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				rt.logger.Error("panic handling request", "panic", rec, "path", r.URL.Path)
				writeError(w, r, reauthApperr.System("internal error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type realmCtxKeyType struct{}

var realmCtxKey realmCtxKeyType

// realmCtx resolves {realm} once per request and stores it for handlers;
// an unknown realm name renders as a NotFound 404 (spec §7 NOT_FOUND).
func (rt *Router) realmCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "realm")
		realm, err := rt.realms.GetByName(r.Context(), name)
		if err != nil {
			writeError(w, r, reauthApperr.NotFound("unknown realm", nil))
			return
		}
		ctx := context.WithValue(r.Context(), realmCtxKey, realm)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func realmFromRequest(r *http.Request) *reauthDomain.Realm {
	realm, _ := r.Context().Value(realmCtxKey).(*reauthDomain.Realm)
	return realm
}

func clientIPAndUA(r *http.Request) (ip, ua *string) {
	remoteIP := r.RemoteAddr
	userAgent := r.UserAgent()
	return &remoteIP, &userAgent
}

// requestDeadline bounds handler work against a slow node/dispatcher
// dependency; every handler derives its working context from this.
func requestDeadline(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
