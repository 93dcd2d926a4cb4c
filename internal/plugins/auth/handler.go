package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
)

// deviceCookieName is the HTTP cookie carrying the opaque device uid that
// anchors the second-factor trust window.
const deviceCookieName = "gatehouse_device"

// deviceCookieMaxAge keeps the device cookie around past the trust window
// so a returning device is recognized even after the window lapsed.
const deviceCookieMaxAge = 365 * 24 * time.Hour

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and render the response. No business
// logic lives here.
type Handler struct {
	service Service
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// SignIn processes an authentication attempt (POST /api/v1/sessions).
func (h *Handler) SignIn(c echo.Context) error {
	var body SignInBody
	if err := c.Bind(&body); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if body.Email == "" || body.Password == "" {
		return apperror.NewBadRequest("email and password are required")
	}
	if body.ApplicationID == "" {
		return apperror.NewBadRequest("application_id is required")
	}

	req := SignInRequest{
		Email:         body.Email,
		Password:      body.Password,
		ApplicationID: body.ApplicationID,
		RememberMe:    body.RememberMe,
		ExpiresIn:     time.Duration(body.ExpiresIn) * time.Second,
		OTPCode:       body.OTPCode,
		DeviceUID:     deviceUID(c),
		Meta:          requestMetadata(c),
	}

	result, err := h.service.SignIn(c.Request().Context(), req)
	if err != nil {
		return err
	}

	if result.NewDeviceUID != "" {
		setDeviceCookie(c, result.NewDeviceUID)
	}

	return c.JSON(http.StatusCreated, signInResponse{
		IssuedToken: result.Token,
		DeviceUID:   result.NewDeviceUID,
	})
}

// signInResponse is the success payload. DeviceUID is present only when
// this attempt minted a new device record.
type signInResponse struct {
	*IssuedToken
	DeviceUID string `json:"device_uid,omitempty"`
}

// deviceUID reads the device cookie, preferring an explicit header for
// non-browser clients that manage the uid themselves.
func deviceUID(c echo.Context) string {
	if uid := c.Request().Header.Get("X-Device-UID"); uid != "" {
		return uid
	}
	cookie, err := c.Cookie(deviceCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setDeviceCookie hands a freshly minted device uid back to the client.
func setDeviceCookie(c echo.Context, uid string) {
	c.SetCookie(&http.Cookie{
		Name:     deviceCookieName,
		Value:    uid,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// requestMetadata builds the audit metadata for the attempt from transport
// facts the client cannot directly assert in the body.
func requestMetadata(c echo.Context) audit.Metadata {
	ua := c.Request().Header.Get("User-Agent")
	return audit.Metadata{
		UserIP:      c.RealIP(),
		UserAgent:   ua,
		UserOS:      sniffOS(ua),
		UserBrowser: sniffBrowser(ua),
		Country:     c.Request().Header.Get("CF-IPCountry"),
		DeviceUID:   deviceUID(c),
	}
}

// sniffOS extracts a coarse OS name from a User-Agent string. Best effort:
// the value is recorded for audit display, never for decisions.
func sniffOS(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Mac OS X"):
		return "macOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return ""
	}
}

// sniffBrowser extracts a coarse browser name from a User-Agent string.
// Order matters: Chrome UAs contain "Safari", Edge UAs contain "Chrome".
func sniffBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	case strings.Contains(ua, "curl/"):
		return "curl"
	default:
		return ""
	}
}
