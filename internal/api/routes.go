package api

import (
	"net/http"
	"strings"

	"bountyexpo/internal/auth"
	"bountyexpo/internal/service"
	"bountyexpo/internal/storage"
	"bountyexpo/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Dependencies struct {
	Bounties    *service.BountyService
	Requests    *service.RequestService
	Completion  *service.CompletionService
	Wallet      *service.WalletService
	Incidents   *service.IncidentService
	Auditor     *service.Auditor
	Proofs      *storage.ProofService
	Files       *storage.LocalStorage // nil when proofs live in S3
	Hub         *ws.Hub
	Auth        *auth.JWTConfig
	Admins      []string
	CORSOrigins []string
	Log         *zap.Logger
}

func Routes(d Dependencies) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Auth == nil {
		d.Auth = auth.NewJWTConfig("", false)
	}
	// Credentials are allowed only for origins listed by name.
	origins := d.CORSOrigins
	credentials := len(origins) > 0
	for _, o := range origins {
		if strings.Contains(o, "*") {
			credentials = false
		}
	}
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(d.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, auth.DevUserHeader},
		AllowCredentials: credentials,
		MaxAge:           300,
	}))
	r.Use(d.Auth.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if d.Files != nil {
		r.Put("/files/*", d.putFile)
		r.Get("/files/*", d.getFile)
	}

	r.Get("/ws", d.wsHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)

		// Bounty endpoints
		r.Post("/bounties", d.createBounty)
		r.Get("/bounties", d.listBounties)
		r.Get("/bounties/{id}", d.getBounty)
		r.Delete("/bounties/{id}", d.hideBounty)
		r.Post("/bounties/{id}/transitions", d.transitionBounty)
		r.Get("/bounties/{id}/ledger", d.bountyLedger)

		// Request endpoints
		r.Post("/bounties/{id}/requests", d.applyToBounty)
		r.Get("/bounties/{id}/requests", d.listRequests)
		r.Post("/requests/{id}/accept", d.acceptRequest)
		r.Post("/requests/{id}/decline", d.declineRequest)

		// Completion endpoints
		r.Post("/bounties/{id}/submissions", d.submitCompletion)
		r.Get("/bounties/{id}/submissions", d.listSubmissions)
		r.Get("/submissions/{id}", d.getSubmission)
		r.Post("/submissions/{id}/approve", d.approveSubmission)
		r.Post("/submissions/{id}/reject", d.rejectSubmission)
		r.Post("/submissions/{id}/revision", d.requestRevision)

		// Wallet endpoints
		r.Get("/wallet/transactions", d.walletHistory)
		r.Get("/wallet/balances", d.walletBalances)

		// Proof uploads
		r.Post("/uploads/sign", d.signUpload)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(d.Admins, d.Log))
			r.Get("/incidents", d.listIncidents)
			r.Post("/incidents/{id}/resolve", d.resolveIncident)
			r.Post("/audit", d.runAudit)
		})
	})

	return r
}

func requireAdmin(admins []string, log *zap.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(admins))
	for _, a := range admins {
		allowed[a] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[auth.GetUserID(r.Context())] {
				WriteError(w, http.StatusForbidden, "FORBIDDEN", "operator access required", log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
