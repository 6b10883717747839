package realtime

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

// TokenVerifier checks a bearer token before a session is admitted.
// A nil verifier admits everyone.
type TokenVerifier interface {
	VerifyToken(token string) error
}

// NewSessionHandler returns the sockjs handler mounted under prefix.
// Each session registers a hub client, forwards its Send channel to the
// transport, and reads subscribe frames until the peer goes away.
func NewSessionHandler(prefix string, h *Hub, verifier TokenVerifier) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		if verifier != nil {
			token := tokenFromRequest(session.Request())
			if token == "" {
				_ = session.Close(4001, "missing token")
				return
			}
			if err := verifier.VerifyToken(token); err != nil {
				_ = session.Close(4002, "invalid token")
				return
			}
		}

		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, Subscription{})
				continue
			}
			h.UpdateSubscription(client, Subscription{Department: parsed.Department})
		}
	})
}

func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
