package ingress

import (
	"context"
	"errors"
	"net/http"

	"github.com/cfoust/avalon/pkg/auth"
	"github.com/cfoust/avalon/pkg/commands"
	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/state"

	"github.com/mileusna/useragent"
	"golang.org/x/time/rate"
)

const (
	CLIENT_MESSAGE_LIMIT int = 16
)

// Commander runs one chat message for a player.
type Commander interface {
	Handle(ctx context.Context, player game.PlayerID, text string) (string, error)
}

// Verifier turns a token presented by a client into the player it was
// issued to.
type Verifier interface {
	Verify(token string) (game.PlayerID, error)
}

// RoomLoader is used to find who should see a room-wide event.
type RoomLoader interface {
	Load(ctx context.Context, roomID string) (*state.Room, error)
}

type Limits struct {
	CommandsPerSecond float64
	Burst             int
}

func (l Limits) NewLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(l.CommandsPerSecond), l.Burst)
}

var ErrRateLimited = errors.New("you are sending commands too quickly")

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// DeviceType classifies a client by its User-Agent header.
func DeviceType(userAgent string) string {
	if userAgent == "" {
		return DeviceUnknown
	}

	parsed := useragent.Parse(userAgent)
	switch {
	case parsed.Bot:
		return DeviceBot
	case parsed.Tablet:
		return DeviceTablet
	case parsed.Mobile:
		return DeviceMobile
	case parsed.Desktop:
		return DeviceDesktop
	}
	return DeviceUnknown
}

// StatusFor maps an error from a command to an HTTP status code.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if errors.Is(err, ErrRateLimited) {
		return http.StatusTooManyRequests
	}

	if errors.Is(err, auth.ErrUnauthorized) {
		return http.StatusUnauthorized
	}

	var usageErr *commands.UsageError
	if errors.As(err, &usageErr) {
		return http.StatusBadRequest
	}

	switch game.KindOf(err) {
	case 0:
		return http.StatusInternalServerError
	case game.ErrorConflict:
		return http.StatusConflict
	case game.ErrorNotFound:
		return http.StatusNotFound
	case game.ErrorPermissionDenied, game.ErrorNotLeader:
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// PublicMessage is what a player is told about an error. Failures that are
// not the player's fault are not described.
func PublicMessage(err error) string {
	if StatusFor(err) == http.StatusInternalServerError {
		return "something went wrong, please try again"
	}
	return err.Error()
}
