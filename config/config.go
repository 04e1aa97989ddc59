package config

import "time"

type Config struct {
	Web     Web
	DB      DB
	Auth    Auth
	Oauth   Oauth
	Cors    Cors
	Payment Payment
	Stripe  Stripe
	Paypal  Paypal
	Events  Events
	Rate    Rate
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:5000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:30s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:courses"`
	MaxIdleConns int    `conf:"default:2"`
	MaxOpenConns int    `conf:"default:10"`
	DisableTLS   bool   `conf:"default:true"`
	Migrate      bool   `conf:"default:true"`
}

type Auth struct {
	SessionLifetime time.Duration `conf:"default:24h"`
	// AdminEmail is granted the admin role when it registers.
	AdminEmail string
}

type Oauth struct {
	DiscoveryTimeout time.Duration `conf:"default:10s"`
	LoginRedirectURL string        `conf:"default:http://localhost:3000/login"`
	Google           OauthProvider
}

type OauthProvider struct {
	Client      string
	Secret      string `conf:"mask"`
	URL         string `conf:"default:https://accounts.google.com"`
	RedirectURL string `conf:"default:http://localhost:5000/auth/oauth-callback/google"`
}

type Cors struct {
	Origin string
}

type Payment struct {
	Provider string        `conf:"default:stripe"`
	Currency string        `conf:"default:usd"`
	Timeout  time.Duration `conf:"default:15s"`
}

type Stripe struct {
	APISecret string `conf:"mask"`
	// APIURL overrides the Stripe endpoint, e.g. to point at stripe-mock.
	APIURL    string
	ReturnURL string `conf:"default:http://localhost:3000/checkout-success"`
}

type Paypal struct {
	ClientID string
	Secret   string `conf:"mask"`
	URL      string `conf:"default:https://api-m.sandbox.paypal.com"`
}

type Events struct {
	// URL of the AMQP broker. Events are dropped when empty.
	URL   string `conf:"mask"`
	Queue string `conf:"default:course-shop.events"`
}

type Rate struct {
	Burst    int           `conf:"default:5"`
	Interval time.Duration `conf:"default:2s"`
	Expiry   time.Duration `conf:"default:30m"`
}
