package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/plugins/account"
	"github.com/gatehouseid/gatehouse/internal/plugins/apikeys"
	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
	"github.com/gatehouseid/gatehouse/internal/plugins/auth"
	"github.com/gatehouseid/gatehouse/internal/plugins/exchange"
	"github.com/gatehouseid/gatehouse/internal/plugins/smtp"
)

// RegisterRoutes builds every plugin's repository/service/handler chain and
// registers its routes. This is the single place where all routes are
// aggregated and where cross-plugin wiring happens.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container orchestration.
	e.GET("/healthz", a.healthz)

	// --- Repositories ---
	accountRepo := account.NewRepository(a.DB)
	deviceRepo := auth.NewDeviceRepository(a.DB)
	applicationRepo := auth.NewApplicationRepository(a.DB)
	auditRepo := audit.NewRepository(a.DB)
	keypairRepo := apikeys.NewRepository(a.DB)
	smtpRepo := smtp.NewSMTPRepository(a.DB)

	// --- Services ---
	auditService := audit.NewService(auditRepo)
	smtpService := smtp.NewSMTPService(smtpRepo, a.Config.Auth.SecretKey)
	accountService := account.NewService(accountRepo, a.Secrets, smtpService, a.Config.BaseURL)
	issuer := auth.NewIssuer(a.Redis, a.Config.Auth)
	authService := auth.NewService(
		accountRepo, deviceRepo, applicationRepo,
		a.Secrets, auditService, issuer, a.Config.Auth,
	)
	keypairService := apikeys.NewService(keypairRepo)
	exchangeService := exchange.NewService(keypairService, accountRepo, auditService, a.Config.Auth)

	// --- Route groups ---
	// Everything lives under /api/v1. The authed group carries the bearer
	// token middleware; handlers read the account id through the injected
	// accessor so plugins stay decoupled from the auth package.
	api := e.Group("/api/v1")
	authed := e.Group("/api/v1", auth.RequireToken(issuer))

	auth.RegisterRoutes(api, auth.NewHandler(authService))
	exchange.RegisterRoutes(api, exchange.NewHandler(exchangeService))
	account.RegisterRoutes(api, authed, account.NewHandler(accountService, auth.GetAccountID))
	apikeys.RegisterRoutes(authed, apikeys.NewHandler(keypairService, auth.GetAccountID))
	audit.RegisterRoutes(authed, audit.NewHandler(auditService, auth.GetAccountID))

	admin := e.Group("/api/v1/admin", auth.RequireToken(issuer), auth.RequireAdmin(accountRepo))
	smtp.RegisterRoutes(admin, smtp.NewHandler(smtpService))
}

// healthz reports liveness plus dependency reachability.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if err := a.DB.PingContext(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["status"] = "degraded"
		status["redis"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if !a.Secrets.Healthy(ctx) {
		// The secret store being down degrades 2FA but sign-in fails
		// closed, so report it without flipping the overall status.
		status["secret_store"] = "unreachable"
	}

	return c.JSON(code, status)
}
