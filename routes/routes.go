package routes

import (
	"github.com/Nurbek02/brainduel/handlers"
	"github.com/Nurbek02/brainduel/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret []byte,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	gameHandler *handlers.GameHandler,
	videoHandler *handlers.VideoHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Публичные маршруты
	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)
	router.Post("/auth/google", authHandler.GoogleLogin)

	router.Get("/videos", videoHandler.ListVideos)
	router.Get("/videos/trending", videoHandler.ListTrending)

	// Защищенные маршруты
	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))

		r.Get("/profile", profileHandler.GetMyProfile)
		r.Post("/profile/avatar", profileHandler.UploadAvatar)

		r.Route("/game", func(r chi.Router) {
			r.Post("/queue", gameHandler.Enqueue)
			r.Delete("/queue", gameHandler.LeaveQueue)

			r.Get("/my-matches", gameHandler.ListMyMatches)
			r.Route("/matches/{matchID}", func(r chi.Router) {
				r.Get("/", gameHandler.GetMatch)
				r.Post("/answer", gameHandler.SubmitAnswer)
				r.Post("/forfeit", gameHandler.Forfeit)
			})
		})
	})
}
