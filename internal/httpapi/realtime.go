package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/hub"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"

	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog"
)

type storageUpdated struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// patientKeys are the collections a patient session may watch.
var patientKeys = map[string]bool{
	repository.KeyTokens:       true,
	repository.KeyAppointments: true,
}

func allowedKey(role models.Role, key string) bool {
	if role == models.RolePatient {
		return patientKeys[key]
	}
	for _, known := range repository.Keys() {
		if known == key {
			return true
		}
	}
	return false
}

// NewRealtimeHandler serves SockJS sessions under /realtime. A session sends
// {"action":"subscribe","keys":[...]} and then receives
// {"type":"storage.updated","key":...} for every change to those keys.
func NewRealtimeHandler(s *datasync.Service, auth *Authenticator, logger zerolog.Logger) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		raw := realtimeToken(session.Request())
		if raw == "" {
			_ = session.Close(4001, "missing token")
			return
		}
		actor, err := auth.Verify(raw)
		if err != nil {
			_ = session.Close(4002, "invalid token")
			return
		}
		serveSession(s, session, actor, logger.With().Str("session_id", session.ID()).Str("user_id", actor.UserID).Logger())
	})
}

func serveSession(s *datasync.Service, session sockjs.Session, actor Actor, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan string, 16)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case key := <-out:
				payload, _ := json.Marshal(storageUpdated{Type: "storage.updated", Key: key})
				if err := session.Send(string(payload)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	var mu sync.Mutex
	subs := make(map[string]context.CancelFunc)
	subscribe := func(key string) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := subs[key]; ok {
			return
		}
		subCtx, subCancel := context.WithCancel(ctx)
		subs[key] = subCancel
		updates := s.Subscribe(subCtx, key)
		go func() {
			for key := range updates {
				select {
				case out <- key:
				case <-subCtx.Done():
					return
				}
			}
		}()
	}
	unsubscribe := func(key string) {
		mu.Lock()
		defer mu.Unlock()
		if stop, ok := subs[key]; ok {
			stop()
			delete(subs, key)
		}
	}

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		parsed, ok := hub.ParseSubscribe([]byte(msg))
		if !ok {
			logger.Debug().Msg("ignoring malformed realtime message")
			continue
		}
		for _, key := range parsed.Keys {
			if parsed.Action == "unsubscribe" {
				unsubscribe(key)
				continue
			}
			if !allowedKey(actor.Role, key) {
				_ = session.Close(4003, "access denied")
				return
			}
			subscribe(key)
		}
	}
}

// realtimeToken reads the bearer token from the header, or from access_token
// since browser SockJS clients cannot set headers.
func realtimeToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
