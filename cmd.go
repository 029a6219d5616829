package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quiz-platform/auth"
	"quiz-platform/config"
	"quiz-platform/database"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindEnv lets QUIZNERDS_* variables fill any flag not given on the command line.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if s, ok := val.([]string); ok {
				val = strings.Join(s, ",")
			}
			_ = fs.Set(f.Name, fmt.Sprintf("%v", val))
		}
	})
}

func newCmd(cfg *config.Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZNERDS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "quiznerds",
		Short:   "QuizNerds trivia API server.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindEnv(v, cmd.Flags())
			setupLogging(cfg.Verbose)
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZNERDS_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 4000, "port to listen on (env: QUIZNERDS_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string (env: QUIZNERDS_DATABASE_URL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for pub/sub and rate limiting, in-process when empty (env: QUIZNERDS_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: QUIZNERDS_REDIS_DB)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HMAC secret for access tokens (env: QUIZNERDS_JWT_SECRET)")
	fs.StringVar(&cfg.SessionSecret, "session-secret", "", "cookie session key (env: QUIZNERDS_SESSION_SECRET)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", auth.DefaultTTL, "access token lifetime (env: QUIZNERDS_TOKEN_TTL)")
	fs.StringVar(&cfg.ClientURL, "client-url", "http://localhost:5173", "front end base URL used in links and redirects (env: QUIZNERDS_CLIENT_URL)")
	fs.StringSliceVar(&cfg.CORSOrigins, "cors-origins", nil, "allowed CORS origins, any origin when empty (env: QUIZNERDS_CORS_ORIGINS)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", 120, "requests per minute per client IP, 0 disables (env: QUIZNERDS_RATE_LIMIT)")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", false, "take the client IP from proxy headers, only behind a reverse proxy (env: QUIZNERDS_TRUST_PROXY)")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", "smtp.gmail.com", "SMTP server (env: QUIZNERDS_SMTP_HOST)")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", 587, "SMTP port (env: QUIZNERDS_SMTP_PORT)")
	fs.StringVar(&cfg.SMTPUser, "smtp-user", "", "SMTP username, mail is logged instead of sent when empty (env: QUIZNERDS_SMTP_USER)")
	fs.StringVar(&cfg.SMTPPass, "smtp-pass", "", "SMTP password (env: QUIZNERDS_SMTP_PASS)")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", "", "sender address, defaults to smtp-user (env: QUIZNERDS_SMTP_FROM)")
	fs.StringVar(&cfg.OpenTDBURL, "opentdb-url", "", "OpenTDB endpoint override (env: QUIZNERDS_OPENTDB_URL)")
	fs.StringVar(&cfg.TriviaAPIURL, "triviaapi-url", "", "The Trivia API endpoint override (env: QUIZNERDS_TRIVIAAPI_URL)")
	fs.DurationVar(&cfg.ExternalTimeout, "external-timeout", 10*time.Second, "timeout for trivia API calls (env: QUIZNERDS_EXTERNAL_TIMEOUT)")
	fs.BoolVar(&cfg.Production, "production", false, "refuse development secrets and mark cookies secure (env: QUIZNERDS_PRODUCTION)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: QUIZNERDS_VERBOSE)")

	cmd.AddCommand(migrateCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quiznerds v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(ctx, db)
		},
	}
}
