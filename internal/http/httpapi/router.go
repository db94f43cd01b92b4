package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"academy/internal/http/handlers"
	"academy/internal/infra"
	"academy/internal/metrics"
	"academy/internal/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
	// StaticDir, when set, is served under /static.
	StaticDir string
	Logger    infra.Logger
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(middleware.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(stdhttp.MethodGet, "/metrics", metrics.Handler())
	if opts.StaticDir != "" {
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}

		r.Post("/auth/signup", app.AuthSignup)
		r.Post("/auth/login", app.AuthLogin)
		r.Get("/courses", app.ListCourses)
		r.Get("/courses/{courseID}", app.GetCourse)
		r.Get("/courses/{courseID}/posts", app.ListPosts)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(app.JWTSecret))

			r.Get("/me", app.Me)
			r.Post("/courses/{courseID}/enroll", app.Enroll)
			r.Get("/courses/{courseID}/progress", app.CourseProgress)
			r.Post("/courses/{courseID}/lessons/{lessonID}/complete", app.CompleteLesson)
			r.Post("/courses/{courseID}/posts", app.CreatePost)
			r.Delete("/posts/{postID}", app.DeletePost)
			r.Post("/posts/{postID}/comments", app.CreateComment)

			r.Route("/tools", func(r chi.Router) {
				r.Post("/recommend", app.Recommend)
				r.Post("/trends", app.AnalyzeTrends)
				r.Get("/trends/quota", app.TrendsQuota)

				r.Route("/studio", func(r chi.Router) {
					r.Post("/script", app.StudioScript)
					r.Post("/runs", app.StudioStart)
					r.Get("/runs/{runID}", app.StudioGet)
					r.Post("/runs/{runID}/scenes/{index}/regenerate", app.StudioRegenerate)
					r.Post("/runs/{runID}/cancel", app.StudioCancel)
					r.Get("/runs/{runID}/export", app.StudioExport)
				})
			})
		})
	})

	return r
}
