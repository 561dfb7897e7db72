package auth

import (
	"net/http"
	"strings"
	"time"
)

const CookieName = "token"

// DeliveryMode decides how a session token reaches the client after login.
type DeliveryMode string

const (
	DeliverBody   DeliveryMode = "body"
	DeliverCookie DeliveryMode = "cookie"
	DeliverBoth   DeliveryMode = "both"
)

func ParseDeliveryMode(value string) DeliveryMode {
	switch DeliveryMode(strings.TrimSpace(strings.ToLower(value))) {
	case DeliverCookie:
		return DeliverCookie
	case DeliverBoth:
		return DeliverBoth
	default:
		return DeliverBody
	}
}

func (m DeliveryMode) UsesBody() bool {
	return m == DeliverBody || m == DeliverBoth
}

func (m DeliveryMode) UsesCookie() bool {
	return m == DeliverCookie || m == DeliverBoth
}

type CookieOptions struct {
	Secure bool
	Domain string
}

func SetSessionCookie(w http.ResponseWriter, opts CookieOptions, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   opts.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSite(opts.Secure),
	})
}

func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSite(opts.Secure),
	})
}

// Cross-site cookies need Secure; without it browsers drop SameSite=None.
func sameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
