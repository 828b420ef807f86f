package routes

import (
	"net/http"

	"github.com/Dosada05/competition-engine/handlers"
	"github.com/Dosada05/competition-engine/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func SetupRoutes(
	tournaments *handlers.TournamentHandler,
	matches *handlers.MatchHandler,
	ws *handlers.WebSocketHandler,
	jwtSecret string,
) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(middleware.RateLimit(10, 20))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/ws/tournaments/{tournamentID}", ws.ServeTournamentFeed)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournaments.List)
		r.Get("/{tournamentID}", tournaments.Get)
		r.Get("/{tournamentID}/bracket", tournaments.Overview)
		r.Get("/{tournamentID}/standings", tournaments.Standings)
		r.Get("/{tournamentID}/matches", matches.List)
		r.Get("/{tournamentID}/matches/{matchID}", matches.Get)

		// Participant operations.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))

			r.Post("/{tournamentID}/register", tournaments.Register)
			r.Delete("/{tournamentID}/register", tournaments.Withdraw)

			r.Post("/{tournamentID}/matches/{matchID}/check-in", matches.CheckIn)
			r.Post("/{tournamentID}/matches/{matchID}/result", matches.SubmitResult)
			r.Post("/{tournamentID}/matches/{matchID}/confirm", matches.ConfirmResult)
			r.Post("/{tournamentID}/matches/{matchID}/dispute", matches.OpenDispute)
			r.Post("/{tournamentID}/disputes/{disputeID}/evidence", matches.UploadEvidence)
		})

		// Organizer and admin operations.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))
			r.Use(middleware.Authorize(middleware.RoleOrganizer, middleware.RoleAdmin))

			r.Post("/", tournaments.Create)
			r.Post("/{tournamentID}/transition", tournaments.Transition)
			r.Post("/{tournamentID}/freeze", tournaments.Freeze)
			r.Post("/{tournamentID}/resume", tournaments.Resume)
			r.Post("/{tournamentID}/cancel", tournaments.Cancel)

			r.Post("/{tournamentID}/matches/{matchID}/force-resolve", matches.ForceResolve)
			r.Post("/{tournamentID}/disputes/{disputeID}/resolve", matches.ResolveDispute)
		})
	})

	return router
}
