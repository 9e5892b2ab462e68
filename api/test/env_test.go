package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/edushop/edushop/api"
	"github.com/edushop/edushop/api/background"
	"github.com/edushop/edushop/config"
	"github.com/edushop/edushop/core/claims"
	"github.com/edushop/edushop/core/user"
	"github.com/edushop/edushop/database"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"golang.org/x/crypto/bcrypt"
)

// TestEnv boots the whole API against a throwaway postgres container and
// mock payment providers. Each env gets its own database name so tests
// never share state.
type TestEnv struct {
	T      *testing.T
	DB     *sqlx.DB
	Server *httptest.Server
	URL    string

	Paypal *mockPaypal
	Stripe *mockStripe

	GatewaySecret string
	WebhookSecret string

	AdminEmail string
	AdminPass  string
	UserEmail  string
	UserPass   string
	UserID     string

	client *http.Client
}

func NewTestEnv(t *testing.T, dbName string) (*TestEnv, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}

	res, err := pool.Run("postgres", "15-alpine", []string{
		"POSTGRES_PASSWORD=postgres",
		"POSTGRES_DB=" + dbName,
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}
	t.Cleanup(func() { pool.Purge(res) })

	dbCfg := config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       "localhost:" + res.GetPort("5432/tcp"),
		Name:       dbName,
		DisableTLS: true,
	}

	var db *sqlx.DB
	if err := pool.Retry(func() error {
		db, err = database.Open(dbCfg)
		return err
	}); err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	env := &TestEnv{
		T:  t,
		DB: db,

		GatewaySecret: "test-gateway-secret",
		WebhookSecret: "whsec_test_secret",

		AdminEmail: "admin@test.com",
		AdminPass:  "admin-pass",
		UserEmail:  "user@test.com",
		UserPass:   "user-pass",
	}

	if err := env.seedUsers(); err != nil {
		return nil, err
	}

	env.Paypal = &mockPaypal{}
	ppSrv := httptest.NewServer(env.Paypal.handle())
	t.Cleanup(ppSrv.Close)

	pp, err := paypal.NewClient("test-client", "test-secret", ppSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}
	if _, err := pp.GetAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("getting mock paypal token: %w", err)
	}

	env.Stripe = &mockStripe{}
	stSrv := httptest.NewServer(env.Stripe.handle())
	t.Cleanup(stSrv.Close)

	strp := &stripecl.API{}
	strp.Init("sk_test_secret", &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(stSrv.URL),
		}),
	})

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	session := scs.New()
	session.Lifetime = time.Hour

	mux := api.APIMux(api.APIConfig{
		Log:        log,
		DB:         db,
		Session:    session,
		Background: background.New(log),
		Paypal:     pp,
		Stripe:     strp,
		StripeCfg: config.Stripe{
			APISecret:     "sk_test_secret",
			WebhookSecret: env.WebhookSecret,
			SuccessURL:    "http://localhost/success",
			CancelURL:     "http://localhost/cancel",
		},
		GatewayCfg: config.Gateway{
			Endpoint:  "https://gateway.test/pay",
			ReturnURL: "http://localhost/return",
			Secret:    env.GatewaySecret,
		},
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env.Server = srv
	env.URL = srv.URL

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("building cookie jar: %w", err)
	}
	env.client = &http.Client{Jar: jar}

	return env, nil
}

func (e *TestEnv) seedUsers() error {
	now := time.Now().UTC()

	for _, u := range []struct {
		email string
		pass  string
		role  string
	}{
		{e.AdminEmail, e.AdminPass, claims.RoleAdmin},
		{e.UserEmail, e.UserPass, claims.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.pass), bcrypt.MinCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		usr := user.User{
			ID:           validate.GenerateID(),
			Name:         u.email,
			Email:        u.email,
			Role:         u.role,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := user.Create(context.Background(), e.DB, usr); err != nil {
			return fmt.Errorf("seeding user %s: %w", u.email, err)
		}

		if u.role == claims.RoleUser {
			e.UserID = usr.ID
		}
	}

	return nil
}

// Client returns the cookie-holding client shared by every request of the
// env, so a Login survives across calls.
func (e *TestEnv) Client() *http.Client {
	return e.client
}

func Login(e *TestEnv, email string, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}

	w, err := e.Client().Post(e.URL+"/auth/login", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("login as %s: status code %s", email, w.Status)
	}
	return nil
}

func Logout(e *TestEnv) error {
	w, err := e.Client().Post(e.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		return fmt.Errorf("logout: status code %s", w.Status)
	}
	return nil
}
