package config

import "time"

type Config struct {
	Web     Web
	DB      DB
	Cors    Cors
	Auth    Auth
	Email   Email
	Gateway Gateway
	Paypal  Paypal
	Stripe  Stripe
	Order   Order
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User       string `conf:"default:postgres"`
	Password   string `conf:"default:postgres,mask"`
	Host       string `conf:"default:localhost"`
	Name       string `conf:"default:edushop"`
	DisableTLS bool   `conf:"default:true"`
}

type Cors struct {
	Origin string `conf:"default:"`
}

type Auth struct {
	SessionLifetime time.Duration `conf:"default:24h"`
}

type Email struct {
	Host     string `conf:"default:localhost"`
	Port     string `conf:"default:25"`
	Address  string `conf:"default:no-reply@edushop.local"`
	Password string `conf:"default:,mask"`
}

// Gateway configures the signed-redirect payment gateway. The secret is
// shared with the provider and feeds the HMAC over every outbound request
// and inbound callback.
type Gateway struct {
	Endpoint  string `conf:"default:https://sandbox.gateway.local/pay"`
	ReturnURL string `conf:"default:http://localhost:3000/checkout/return"`
	Secret    string `conf:"default:gateway-dev-secret,mask"`
}

type Paypal struct {
	ClientID string `conf:"default:paypal-dev-client"`
	Secret   string `conf:"default:paypal-dev-secret,mask"`
	URL      string `conf:"default:https://api.sandbox.paypal.com"`
}

type Stripe struct {
	APISecret     string `conf:"default:stripe-dev-secret,mask"`
	WebhookSecret string `conf:"default:whsec_dev,mask"`
	SuccessURL    string `conf:"default:http://localhost:3000/checkout/success"`
	CancelURL     string `conf:"default:http://localhost:3000/checkout/cancel"`
}

type Order struct {
	PendingTimeout time.Duration `conf:"default:30m"`
	SweepInterval  time.Duration `conf:"default:5m"`
}
