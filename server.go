package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"quiz-platform/auth"
	"quiz-platform/config"
	"quiz-platform/database"
	"quiz-platform/handlers"
	"quiz-platform/middleware"
	"quiz-platform/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		AddSource:  verbose,
		TimeFormat: time.DateTime,
	})))
}

// app holds everything the routes close over.
type app struct {
	cfg     *config.Config
	store   *database.Store
	tokens  *auth.Tokens
	cookies sessions.Store
	broker  services.Broker
	limiter services.Limiter
	mailer  services.Mailer
	trivia  *services.TriviaClient
}

func newCookieStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore(cfg.CookieSecret())
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func newMailer(cfg *config.Config) services.Mailer {
	if !cfg.MailConfigured() {
		slog.Warn("SMTP not configured, verification links will be logged")
		return services.LogMailer{}
	}
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return &services.SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     from,
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting quiznerds", "version", releaseVersion)

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	a := &app{
		cfg:     cfg,
		store:   database.NewStore(db),
		tokens:  auth.NewTokens(cfg.Secret(), cfg.TokenTTL),
		cookies: newCookieStore(cfg),
		mailer:  newMailer(cfg),
		trivia:  services.NewTriviaClient(cfg.OpenTDBURL, cfg.TriviaAPIURL, cfg.ExternalTimeout),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		slog.Info("redis connected", "addr", cfg.RedisAddr)
		a.broker = services.NewRedisBroker(rdb)
		a.limiter = services.NewRedisLimiter(rdb)
	} else {
		a.broker = services.NewLocalBroker()
		a.limiter = services.NewMemoryLimiter()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handler wraps the router in the global middleware chain and CORS.
func (a *app) handler() http.Handler {
	var h http.Handler = a.routes()
	if a.cfg.RateLimit > 0 {
		h = middleware.RateLimit(a.limiter, a.cfg.RateLimit, time.Minute, a.cfg.TrustProxy)(h)
	}
	h = middleware.SecurityHeaders(a.cfg.Production)(h)
	h = middleware.Logger(middleware.Recover(h))

	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	if len(a.cfg.CORSOrigins) > 0 {
		opts.AllowedOrigins = a.cfg.CORSOrigins
	} else {
		opts.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(opts).Handler(h)
}

func (a *app) routes() *mux.Router {
	requireAuth := middleware.Auth(a.tokens, a.cookies)
	optionalAuth := middleware.OptionalAuth(a.tokens, a.cookies)
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }
	optional := func(h http.HandlerFunc) http.Handler { return optionalAuth(h) }

	clientURL := a.cfg.ClientBase()
	s := a.store

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.GetHealth(s)).Methods("GET")

	// Kullanıcılar
	users := api.PathPrefix("/users").Subrouter()
	users.HandleFunc("/register", handlers.Register(s, a.tokens)).Methods("POST")
	users.HandleFunc("/login", handlers.Login(s, a.tokens, a.cookies)).Methods("POST")
	users.HandleFunc("/logout", handlers.Logout(a.cookies)).Methods("POST")
	users.HandleFunc("/refresh", handlers.RefreshToken(a.tokens)).Methods("POST")
	users.Handle("/me", authed(handlers.GetMe(s))).Methods("GET")
	users.Handle("/me", authed(handlers.UpdateMe(s))).Methods("PUT")
	users.Handle("/me/password", authed(handlers.UpdateSecurity(s))).Methods("PUT")
	users.Handle("/me/stats", authed(handlers.GetMyStats(s))).Methods("GET")
	users.HandleFunc("/{userId}", handlers.GetUserProfile(s)).Methods("GET")

	// E-posta doğrulama
	verify := api.PathPrefix("/auth").Subrouter()
	verify.HandleFunc("/verification-status/{userId}", handlers.VerificationStatus(s)).Methods("GET")
	verify.Handle("/request-verification", authed(handlers.RequestVerification(s, a.mailer, clientURL))).Methods("POST")
	verify.HandleFunc("/verify-email", handlers.VerifyEmailLink(s, clientURL)).Methods("GET")
	verify.HandleFunc("/verify-email-token", handlers.VerifyEmailToken(s)).Methods("POST")
	verify.Handle("/sync-verification", authed(handlers.SyncVerification(s, a.mailer))).Methods("POST")

	// Arkadaşlar
	friends := api.PathPrefix("/friends").Subrouter()
	friends.Use(requireAuth)
	friends.HandleFunc("/search", handlers.SearchUsers(s)).Methods("GET")
	friends.HandleFunc("/request", handlers.SendFriendRequest(s, s)).Methods("POST")
	friends.HandleFunc("/requests", handlers.ListFriendRequests(s)).Methods("GET")
	friends.HandleFunc("/accept", handlers.AcceptFriendRequest(s, s)).Methods("POST")
	friends.HandleFunc("/decline", handlers.DeclineFriendRequest(s)).Methods("POST")
	friends.HandleFunc("", handlers.ListFriends(s)).Methods("GET")
	friends.HandleFunc("/", handlers.ListFriends(s)).Methods("GET")
	friends.HandleFunc("/{friendId}", handlers.RemoveFriend(s, s)).Methods("DELETE")

	// Çok oyunculu
	mp := handlers.NewMultiplayer(s, s, a.broker, a.trivia, clientURL)
	multi := api.PathPrefix("/multiplayer").Subrouter()
	multi.Handle("/create", authed(mp.Create())).Methods("POST")
	multi.Handle("/join", authed(mp.Join())).Methods("POST")
	multi.HandleFunc("/session/{code}", mp.Get()).Methods("GET")
	multi.Handle("/start/{code}", authed(mp.Start())).Methods("POST")
	multi.Handle("/session/{code}/answer", authed(mp.Answer())).Methods("POST")
	multi.HandleFunc("/session/{code}/leaderboard", mp.Leaderboard()).Methods("GET")
	multi.HandleFunc("/session/{code}/qr", mp.QR()).Methods("GET")
	multi.HandleFunc("/session/{code}/ws", mp.Watch()).Methods("GET")
	multi.Handle("/end/{code}", authed(mp.End())).Methods("POST")
	multi.Handle("/leave/{code}", authed(mp.Leave())).Methods("POST")
	multi.Handle("/invite", authed(mp.Invite())).Methods("POST")
	multi.Handle("/invite/{code}/respond", authed(mp.RespondInvite())).Methods("POST")
	multi.Handle("/invites", authed(mp.Invites())).Methods("GET")
	multi.Handle("/public", optional(mp.Public())).Methods("GET")

	// Harici soru kaynakları
	external := api.PathPrefix("/external").Subrouter()
	external.HandleFunc("/opentdb", handlers.GetOpenTDB(a.trivia)).Methods("GET")
	external.HandleFunc("/triviaapi", handlers.GetTriviaAPI(a.trivia)).Methods("GET")

	quizzes := api.PathPrefix("/quizzes").Subrouter()
	quizzes.HandleFunc("", handlers.ListQuizzes(s)).Methods("GET")
	quizzes.HandleFunc("/", handlers.ListQuizzes(s)).Methods("GET")
	quizzes.Handle("", authed(handlers.CreateQuiz(s))).Methods("POST")
	quizzes.Handle("/", authed(handlers.CreateQuiz(s))).Methods("POST")
	quizzes.Handle("/attempts/mine", authed(handlers.MyAttempts(s))).Methods("GET")
	quizzes.Handle("/{id}", optional(handlers.GetQuiz(s))).Methods("GET")
	quizzes.Handle("/{id}/status", authed(handlers.UpdateQuizStatus(s))).Methods("PUT")
	quizzes.Handle("/{id}/attempts", authed(handlers.SubmitAttempt(s))).Methods("POST")

	api.HandleFunc("/leaderboard", handlers.GetLeaderboard(s)).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}`))
	})

	return r
}
