package ingress

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cfoust/avalon/pkg/auth"
	"github.com/cfoust/avalon/pkg/game"

	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

const (
	// Most players the API keeps a rate limiter for at once.
	MAX_LIMITERS = 4096
	// Limiters untouched for this long are dropped first.
	LIMITER_IDLE = 10 * time.Minute
)

// CommandRequest is the body of /api/command. The player is taken from the
// bearer token, never from the body.
type CommandRequest struct {
	Text string `json:"text"`
}

type CommandResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

type playerLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// API is a plain HTTP way to send commands, for bots and chat bridges.
type API struct {
	commander   Commander
	verifier    Verifier
	limits      Limits
	limiters    map[game.PlayerID]*playerLimiter
	maxLimiters int
	now         func() time.Time
	mutex       deadlock.Mutex
}

func NewAPI(commander Commander, verifier Verifier, limits Limits) *API {
	return &API{
		commander:   commander,
		verifier:    verifier,
		limits:      limits,
		limiters:    make(map[game.PlayerID]*playerLimiter),
		maxLimiters: MAX_LIMITERS,
		now:         time.Now,
	}
}

// evict makes room for one more limiter. Idle entries go first; if every
// entry is busy the least recently seen one is dropped.
func (a *API) evict(now time.Time) {
	for player, entry := range a.limiters {
		if now.Sub(entry.seen) > LIMITER_IDLE {
			delete(a.limiters, player)
		}
	}

	for len(a.limiters) >= a.maxLimiters {
		var oldest game.PlayerID
		var oldestSeen time.Time
		for player, entry := range a.limiters {
			if oldest == "" || entry.seen.Before(oldestSeen) {
				oldest = player
				oldestSeen = entry.seen
			}
		}
		delete(a.limiters, oldest)
	}
}

func (a *API) limiter(player game.PlayerID) *rate.Limiter {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	now := a.now()
	entry, ok := a.limiters[player]
	if !ok {
		if len(a.limiters) >= a.maxLimiters {
			a.evict(now)
		}
		entry = &playerLimiter{limiter: a.limits.NewLimiter()}
		a.limiters[player] = entry
	}
	entry.seen = now
	return entry.limiter
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	header := w.Header()
	header.Add("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	player, err := a.verifier.Verify(bearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, CommandResponse{Error: PublicMessage(err)})
		return
	}

	var request CommandRequest
	err = json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "expected {\"text\": ...}"})
		return
	}

	if !a.limiter(player).Allow() {
		writeJSON(w, http.StatusTooManyRequests, CommandResponse{Error: ErrRateLimited.Error()})
		return
	}

	reply, err := a.commander.Handle(r.Context(), player, request.Text)
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("player", string(player)).Msg("command failed")
		}
		writeJSON(w, status, CommandResponse{Error: PublicMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{Reply: reply})
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/ping":
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	case "/api/command":
		a.handleCommand(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var _ Verifier = (*auth.Authority)(nil)
