package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/matchforge/tournament-engine/handlers"
	"github.com/matchforge/tournament-engine/metrics"
	"github.com/matchforge/tournament-engine/middleware"
)

type Handlers struct {
	Tournaments   *handlers.TournamentHandler
	Registrations *handlers.RegistrationHandler
	Brackets      *handlers.BracketHandler
	Matches       *handlers.MatchHandler
	Leaderboards  *handlers.LeaderboardHandler
	Prizes        *handlers.PrizeHandler
	WebSocket     *handlers.WebSocketHandler
}

// SetupRoutes собирает весь HTTP-роутер движка.
// Просмотр турниров, сеток и таблиц открыт; все мутации требуют JWT,
// административные операции дополнительно требуют роль organizer или admin.
func SetupRoutes(h Handlers, jwtSecret []byte) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", handlers.HealthcheckHandler)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/swagger/*", httpSwagger.WrapHandler)

	authenticate := middleware.Authenticate(jwtSecret)
	staffOnly := middleware.Authorize(middleware.RoleOrganizer, middleware.RoleAdmin)
	adminOnly := middleware.Authorize(middleware.RoleAdmin)

	router.Route("/tournaments", func(r chi.Router) {
		// Публичные маршруты для просмотра.
		r.Get("/", h.Tournaments.ListHandler)
		r.Get("/{tournamentID}", h.Tournaments.GetByIDHandler)
		r.Get("/{tournamentID}/registrations", h.Registrations.ListHandler)
		r.Get("/{tournamentID}/waitlist", h.Registrations.WaitlistHandler)
		r.Get("/{tournamentID}/brackets", h.Brackets.ListHandler)
		r.Get("/{tournamentID}/matches", h.Matches.ListHandler)
		r.Get("/{tournamentID}/matches/upcoming", h.Matches.UpcomingHandler)
		r.Get("/{tournamentID}/leaderboard", h.Leaderboards.TournamentHandler)
		r.Get("/{tournamentID}/prizes", h.Prizes.ListHandler)
		r.Get("/{tournamentID}/prizes/summary", h.Prizes.SummaryHandler)

		// Действия участников: достаточно аутентификации.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{tournamentID}/registrations", h.Registrations.RegisterHandler)
		})

		// Управление турниром: организатор или админ.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(staffOnly)

			r.Post("/", h.Tournaments.CreateHandler)
			r.Patch("/{tournamentID}", h.Tournaments.UpdateHandler)
			r.Delete("/{tournamentID}", h.Tournaments.DeleteHandler)
			r.Post("/{tournamentID}/clone", h.Tournaments.CloneHandler)
			r.Post("/{tournamentID}/transitions/{action}", h.Tournaments.TransitionHandler)

			r.Post("/{tournamentID}/seeding/mmr", h.Registrations.SeedByMMRHandler)
			r.Put("/{tournamentID}/seeding", h.Registrations.BulkSeedHandler)

			r.Post("/{tournamentID}/brackets", h.Brackets.GenerateHandler)
			r.Post("/{tournamentID}/brackets/reseed", h.Brackets.ReseedHandler)
			r.Post("/{tournamentID}/brackets/byes", h.Brackets.HandleByesHandler)
			r.Post("/{tournamentID}/brackets/grand-finals-reset", h.Brackets.ResetGrandFinalsHandler)
			r.Post("/{tournamentID}/disqualifications", h.Brackets.DisqualifyHandler)
			r.Post("/{tournamentID}/swiss/rounds", h.Brackets.PairSwissRoundHandler)

			r.Get("/{tournamentID}/matches/disputed", h.Matches.DisputedHandler)
			r.Post("/{tournamentID}/matches/schedule", h.Matches.AutoScheduleHandler)

			r.Post("/{tournamentID}/standings/recalculate", h.Leaderboards.RecalculateHandler)
			r.Post("/{tournamentID}/standings/buchholz", h.Leaderboards.UpdateBuchholzHandler)

			r.Post("/{tournamentID}/prizes", h.Prizes.SetupPoolHandler)
			r.Post("/{tournamentID}/prizes/calculate", h.Prizes.CalculateHandler)
			r.Post("/{tournamentID}/prizes/bulk-distribute", h.Prizes.BulkDistributeHandler)
		})
	})

	router.Route("/registrations", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/{registrationID}", h.Registrations.GetHandler)
		r.Delete("/{registrationID}", h.Registrations.CancelHandler)
		r.Post("/{registrationID}/check-in", h.Registrations.CheckInHandler)

		r.Group(func(r chi.Router) {
			r.Use(staffOnly)
			r.Post("/{registrationID}/no-show", h.Registrations.NoShowHandler)
			r.Post("/{registrationID}/substitute", h.Registrations.SubstituteHandler)
			r.Post("/{registrationID}/refund", h.Registrations.RefundHandler)
			r.Put("/{registrationID}/seed", h.Registrations.SetSeedHandler)
		})
	})

	router.Route("/brackets", func(r chi.Router) {
		r.Get("/{bracketID}", h.Brackets.GetHandler)
		r.Get("/{bracketID}/visualization", h.Brackets.VisualizeHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(staffOnly)
			r.Post("/{bracketID}/export", h.Brackets.ExportHandler)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", h.Matches.GetHandler)
		r.Get("/{matchID}/manipulation-check", h.Matches.ManipulationCheckHandler)

		// Игровые действия участников.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{matchID}/check-in", h.Matches.CheckInHandler)
			r.Post("/{matchID}/result", h.Matches.SubmitResultHandler)
			r.Post("/{matchID}/confirm", h.Matches.ConfirmResultHandler)
			r.Post("/{matchID}/dispute", h.Matches.DisputeHandler)
		})

		// Административные вмешательства.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(staffOnly)
			r.Put("/{matchID}/schedule", h.Matches.ScheduleHandler)
			r.Post("/{matchID}/postpone", h.Matches.PostponeHandler)
			r.Post("/{matchID}/forfeit", h.Matches.ForfeitHandler)
			r.Put("/{matchID}/server", h.Matches.AssignServerHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(adminOnly)
			r.Post("/{matchID}/resolve", h.Matches.ResolveDisputeHandler)
			r.Post("/{matchID}/override", h.Matches.OverrideHandler)
			r.Patch("/{matchID}/status", h.Matches.UpdateStatusHandler)
		})
	})

	router.Route("/prizes", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/{prizeID}", h.Prizes.GetHandler)
		r.Put("/{prizeID}/wallet", h.Prizes.SetWalletHandler)

		r.Group(func(r chi.Router) {
			r.Use(staffOnly)
			r.Post("/{prizeID}/distribute", h.Prizes.DistributeHandler)
			r.Post("/{prizeID}/retry", h.Prizes.RetryHandler)
			r.Post("/{prizeID}/tax", h.Prizes.TaxHandler)
			r.Post("/{prizeID}/verify", h.Prizes.VerifyHandler)
			r.Delete("/{prizeID}", h.Prizes.CancelHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Patch("/{prizeID}/status", h.Prizes.UpdateStatusHandler)
		})
	})

	router.Get("/leaderboard", h.Leaderboards.GlobalHandler)
	router.Get("/players/{userID}/profile", h.Leaderboards.PlayerProfileHandler)

	router.Route("/users/{userID}", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/prizes", h.Prizes.ListByRecipientHandler)
		r.Get("/earnings", h.Prizes.EarningsHandler)
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	return router
}
