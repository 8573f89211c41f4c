// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/access"
	"github.com/relabs-tech/campus/core/backend"
	"github.com/relabs-tech/campus/core/csql"
	"github.com/relabs-tech/campus/core/logger"
	"github.com/relabs-tech/campus/core/notifier"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
//
// Lists like ADMIN_EMAILS and KAFKA_BROKERS are separated by semicolons.
type Service struct {
	Postgres           string   `env:"POSTGRES,optional" description:"the connection string for the Postgres DB without password" validate:"required_if=Store postgres"`
	PostgresPassword   string   `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	Schema             string   `env:"SCHEMA,default=campus" description:"the Postgres schema of all tables" validate:"required"`
	Port               int      `env:"PORT,default=3000" description:"the port to listen on" validate:"min=1,max=65535"`
	Store              string   `env:"STORE,default=postgres" description:"where records are stored, postgres or redis" validate:"oneof=postgres redis"`
	RedisURL           string   `env:"REDIS_URL,optional" description:"redis url, e.g. redis://localhost:6379/0" validate:"required_if=Store redis"`
	JwtSecret          string   `env:"JWT_SECRET,optional" description:"shared secret for HS256 signed tokens"`
	JwtIssuer          string   `env:"JWT_ISSUER,optional" description:"the accepted token issuer"`
	JwtCertificatesURL string   `env:"JWT_CERTIFICATES_URL,optional" description:"download url of the certificates for RS256 signed tokens" validate:"omitempty,url"`
	AdminEmails        []string `env:"ADMIN_EMAILS,optional" description:"emails of the administrators" validate:"dive,email"`
	BackdoorToken      string   `env:"BACKDOOR_TOKEN,optional" description:"bearer token with admin rights, for development only"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS,optional" description:"kafka brokers for change notifications" validate:"dive,hostname_port"`
	KafkaTopic         string   `env:"KAFKA_TOPIC,default=campus" description:"kafka topic for change notifications"`
	LogLevel           string   `env:"LOG_LEVEL,default=info" description:"the log level" validate:"oneof=trace debug info warning error"`
}

// validate checks the service configuration
func (s *Service) validate() error {
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	if len(s.JwtCertificatesURL) > 0 && len(s.Postgres) == 0 {
		return errors.New("JWT_CERTIFICATES_URL needs POSTGRES to cache the certificates")
	}
	return nil
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	if err := service.validate(); err != nil {
		panic(err)
	}

	if err := logger.InitLogger(service.LogLevel); err != nil {
		panic(err)
	}
	rlog := logger.Default()

	router := mux.NewRouter()
	logger.AddRequestID(router)

	var db *csql.DB
	if len(service.Postgres) > 0 {
		db = csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.Schema)
		defer db.Close()
		if err := access.EnsureAccountTable(db); err != nil {
			panic(err)
		}
		admins := make([]access.Account, len(service.AdminEmails))
		for i, email := range service.AdminEmails {
			admins[i] = access.Account{Email: email, Admin: true}
		}
		if err := access.EnsureAccounts(db, admins...); err != nil {
			panic(err)
		}
	}

	var repositories backend.RepositoryFactory
	switch service.Store {
	case "redis":
		opts, err := redis.ParseURL(service.RedisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err = rdb.Ping(context.Background()).Err(); err != nil {
			panic(err)
		}
		rlog.Infoln("storing records in redis", opts.Addr)
		repositories = backend.RedisRepositories(rdb, service.Schema)
	default:
		repositories = backend.SQLRepositories(db, true)
	}

	if len(service.BackdoorToken) > 0 {
		rlog.Warnln("backdoor is enabled")
		router.Use(access.NewBackdoorMiddleware(&access.BackdoorMiddlewareBuilder{
			Backdoors: map[string]access.Authorization{
				service.BackdoorToken: {Identity: "backdoor", Roles: []string{access.RoleUser, access.RoleAdmin}},
			},
		}))
	}
	if len(service.JwtSecret) > 0 || len(service.JwtCertificatesURL) > 0 {
		router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
			Secret:               service.JwtSecret,
			PublicKeyDownloadURL: service.JwtCertificatesURL,
			Issuer:               service.JwtIssuer,
			AdminEmails:          service.AdminEmails,
			DB:                   db,
		}))
	} else {
		rlog.Warnln("no jwt configured, only the backdoor can authenticate")
	}

	var changes core.Notifier
	if len(service.KafkaBrokers) > 0 {
		kafkaNotifier := notifier.NewKafka(service.KafkaBrokers, service.KafkaTopic)
		defer kafkaNotifier.Close()
		changes = kafkaNotifier
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	backend.New(&backend.Builder{
		Config:       configurationJSON,
		Router:       router,
		Repositories: repositories,
		Notifier:     changes,
		Metrics:      metrics,
		CORS:         true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(service.Port),
		Handler:           handlers.RecoveryHandler(handlers.RecoveryLogger(rlog), handlers.PrintRecoveryStack(true))(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		rlog.Infoln("listen on port", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rlog.WithError(err).Errorln("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rlog.WithError(err).Errorln("shutdown failed")
	}
}
