package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/course-shop/api"
	"github.com/irsalhamdi/course-shop/api/background"
	"github.com/irsalhamdi/course-shop/config"
	"github.com/irsalhamdi/course-shop/core/auth"
	"github.com/irsalhamdi/course-shop/core/checkout"
	"github.com/irsalhamdi/course-shop/core/payment"
	"github.com/irsalhamdi/course-shop/database"
	"github.com/irsalhamdi/course-shop/events"
	"github.com/irsalhamdi/course-shop/rate"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	// A missing .env is fine, the environment may be set already.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "COURSES"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate the database: %w", err)
		}
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Auth.SessionLifetime

	bg := background.New(logger)

	gateway, err := makeGateway(cfg, logger)
	if err != nil {
		return err
	}

	var pub events.Publisher = events.Discard
	if cfg.Events.URL != "" {
		amqp, err := events.DialAMQP(cfg.Events.URL, cfg.Events.Queue)
		if err != nil {
			return fmt.Errorf("failed to connect to the event broker: %w", err)
		}
		defer amqp.Close()
		pub = amqp
	} else {
		logger.Warn("no event broker configured, events are discarded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Oauth.DiscoveryTimeout)
	defer cancel()
	google := cfg.Oauth.Google
	oauthProvs, err := auth.MakeProviders(ctx, []auth.ProviderConfig{
		{Name: "google", Client: google.Client, Secret: google.Secret, URL: google.URL, RedirectURL: google.RedirectURL},
	})
	if err != nil {
		return fmt.Errorf("failed to discover oauth providers: %w", err)
	}

	loginLimiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, rate.Every(cfg.Rate.Interval))
	defer loginLimiter.Stop()
	checkoutLimiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, rate.Every(cfg.Rate.Interval))
	defer checkoutLimiter.Stop()

	store := checkout.Store{DB: db}
	svc := &checkout.Service{
		Catalog:    store,
		Ledger:     store,
		Reconciler: store,
		Gateway:    gateway,
		Events:     pub,
		Background: bg,
		Log:        logger,
		Currency:   cfg.Payment.Currency,
	}

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:       cfg.Cors.Origin,
		Log:              logger,
		DB:               db,
		Session:          sessionManager,
		Checkout:         svc,
		Providers:        oauthProvs,
		LoginRedirectURL: cfg.Oauth.LoginRedirectURL,
		AdminEmail:       cfg.Auth.AdminEmail,
		LoginLimiter:     loginLimiter,
		CheckoutLimiter:  checkoutLimiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}

func makeGateway(cfg config.Config, logger *logrus.Logger) (payment.Gateway, error) {
	switch cfg.Payment.Provider {
	case "stripe":
		if cfg.Stripe.APISecret == "" {
			return nil, errors.New("stripe selected but no api secret configured")
		}
		return payment.NewStripe(payment.StripeConfig{
			APISecret: cfg.Stripe.APISecret,
			URL:       cfg.Stripe.APIURL,
			ReturnURL: cfg.Stripe.ReturnURL,
			Timeout:   cfg.Payment.Timeout,
		}, logger), nil

	case "paypal":
		pp, err := paypal.NewClient(cfg.Paypal.ClientID, cfg.Paypal.Secret, cfg.Paypal.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to build the paypal client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Payment.Timeout)
		defer cancel()
		if _, err = pp.GetAccessToken(ctx); err != nil {
			return nil, fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
		return payment.NewPaypal(pp, cfg.Payment.Timeout), nil
	}

	return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
}
