package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/rooms"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog/log"
)

const NAMESPACE = "avalon"

// Caller is the player a command is being handled for.
type Caller struct {
	Ctx     context.Context
	Player  game.PlayerID
	replies []string
}

func (c *Caller) Reply(format string, args ...interface{}) {
	c.replies = append(c.replies, fmt.Sprintf(format, args...))
}

// Handler turns chat messages into room operations.
type Handler struct {
	group *CommandGroup[*Caller]
	rooms *rooms.Service
}

func New(service *rooms.Service) *Handler {
	handler := Handler{
		group: NewCommandGroup[*Caller](NAMESPACE),
		rooms: service,
	}

	for _, command := range handler.commands() {
		err := handler.group.Register(command)
		if err != nil {
			panic(fmt.Sprintf("invalid command %s: %s", command.Name, err))
		}
	}

	return &handler
}

// Split breaks a message into words, dropping a leading # or /.
func Split(text string) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimLeft(text, "#/")
	return strings.Fields(text)
}

func (h *Handler) CanHandle(text string) bool {
	return h.group.CanHandle(Split(text))
}

// Handle runs one message for a player and returns the text to send back.
// Errors carry a message meant for the player.
func (h *Handler) Handle(ctx context.Context, player game.PlayerID, text string) (string, error) {
	caller := Caller{
		Ctx:    ctx,
		Player: player,
	}

	args := Split(text)
	err := h.group.Handle(&caller, args)
	if err != nil {
		log.Debug().
			Err(err).
			Str("player", string(player)).
			Str("command", text).
			Msg("command failed")
		return "", err
	}

	return strings.Join(caller.replies, "\n"), nil
}

func (h *Handler) currentRoom(caller *Caller) (string, error) {
	current, err := h.rooms.CurrentRoom(caller.Ctx, caller.Player)
	if err != nil {
		return "", err
	}

	if opt.IsNone(current) {
		return "", game.NewError(game.ErrorNotInGame, "you are not in a room, send #create or #join <room>")
	}

	return current.Value, nil
}

func (h *Handler) create(caller *Caller) error {
	room, err := h.rooms.Create(caller.Ctx, caller.Player)
	if err != nil {
		return err
	}

	caller.Reply("Created room %s. Others can join with #join %s", room.ID, room.ID)
	return nil
}

func (h *Handler) join(caller *Caller, roomID string) error {
	room, err := h.rooms.Join(caller.Ctx, roomID, caller.Player)
	if err != nil {
		return err
	}

	caller.Reply("You are in room %s with %d players", room.ID, len(room.State.Players))
	return nil
}

func (h *Handler) start(caller *Caller) error {
	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	_, err = h.rooms.Start(caller.Ctx, roomID, caller.Player)
	if err != nil {
		return err
	}

	view, err := h.rooms.View(caller.Ctx, roomID, caller.Player)
	if err != nil {
		return err
	}

	caller.Reply("%s", view.String())
	return nil
}

func (h *Handler) nick(caller *Caller, words []string) error {
	nickname := strings.TrimSpace(strings.Join(words, " "))
	if nickname == "" {
		return usageError("usage: #nick <name>")
	}

	err := h.rooms.SetNickname(caller.Ctx, caller.Player, nickname)
	if err != nil {
		return err
	}

	caller.Reply("You will be known as %s", nickname)
	return nil
}

func (h *Handler) status(caller *Caller) error {
	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	summary, err := h.rooms.Status(caller.Ctx, roomID)
	if err != nil {
		return err
	}

	caller.Reply("Room %s\n%s", roomID, summary.String())
	return nil
}

func (h *Handler) role(caller *Caller) error {
	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	view, err := h.rooms.View(caller.Ctx, roomID, caller.Player)
	if err != nil {
		return err
	}

	caller.Reply("%s", view.String())
	return nil
}

func (h *Handler) pick(caller *Caller, seats []int) error {
	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	room, err := h.rooms.Pick(caller.Ctx, roomID, caller.Player, seats)
	if err != nil {
		return err
	}

	caller.Reply("Proposed %s", game.FormatSeats(room.State.Seats(room.State.Team)))
	return nil
}

func (h *Handler) vote(caller *Caller, value string) error {
	vote, err := game.ParseTeamVote(value)
	if err != nil {
		return game.NewError(game.ErrorInvalidVote, "%s", err.Error())
	}

	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	_, err = h.rooms.Vote(caller.Ctx, roomID, caller.Player, vote)
	if err != nil {
		return err
	}

	caller.Reply("You voted %s", vote)
	return nil
}

func (h *Handler) quest(caller *Caller, value string) error {
	vote, err := game.ParseQuestVote(value)
	if err != nil {
		return game.NewError(game.ErrorInvalidVote, "%s", err.Error())
	}

	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	_, err = h.rooms.Quest(caller.Ctx, roomID, caller.Player, vote)
	if err != nil {
		return err
	}

	caller.Reply("You played %s", vote)
	return nil
}

func (h *Handler) shoot(caller *Caller, seat int) error {
	roomID, err := h.currentRoom(caller)
	if err != nil {
		return err
	}

	resolution, err := h.rooms.Shoot(caller.Ctx, roomID, caller.Player, seat)
	if err != nil {
		return err
	}

	caller.Reply("Player %d was %s", seat, resolution.TargetRole.Title())
	return nil
}

func (h *Handler) profile(caller *Caller) error {
	stats, err := h.rooms.Profile(caller.Ctx, caller.Player)
	if err != nil {
		return err
	}

	caller.Reply(
		"%s\nRating: %d\nGames: %d (won %d, %.1f%%)\nGood: %d games, %d wins\nEvil: %d games, %d wins",
		h.rooms.DisplayName(caller.Ctx, caller.Player),
		stats.Rating,
		stats.Games,
		stats.Wins,
		stats.WinRate(),
		stats.GoodGames,
		stats.GoodWins,
		stats.EvilGames,
		stats.EvilWins,
	)
	return nil
}

func (h *Handler) help(caller *Caller) {
	caller.Reply("%s", h.group.Help())
}

func (h *Handler) commands() []Command {
	return []Command{
		{
			Name:        "create",
			Aliases:     []string{"建房", "创建房间"},
			Description: "open a new room",
			Callback:    h.create,
		},
		{
			Name:        "join",
			Aliases:     []string{"加入"},
			ArgFormat:   "<room>",
			Description: "join a room by its number",
			Callback:    h.join,
		},
		{
			Name:        "start",
			Aliases:     []string{"开始游戏"},
			Description: "deal the roles (room owner only)",
			Callback:    h.start,
		},
		{
			Name:        "nick",
			Aliases:     []string{"昵称"},
			ArgFormat:   "<name>",
			Description: "set the name other players see",
			Callback:    h.nick,
		},
		{
			Name:        "status",
			Aliases:     []string{"状态"},
			Description: "show the state of your game",
			Callback:    h.status,
		},
		{
			Name:        "role",
			Aliases:     []string{"身份"},
			Description: "show your role and what you know",
			Callback:    h.role,
		},
		{
			Name:        "pick",
			Aliases:     []string{"提议"},
			ArgFormat:   "<player> <player>...",
			Description: "propose a team (leader only)",
			Callback:    h.pick,
		},
		{
			Name:        "vote",
			Aliases:     []string{"投票"},
			ArgFormat:   "yes|no",
			Description: "approve or reject the proposed team",
			Callback:    h.vote,
		},
		{
			Name:        "quest",
			Aliases:     []string{"任务"},
			ArgFormat:   "success|fail",
			Description: "play your quest card (team members only)",
			Callback:    h.quest,
		},
		{
			Name:        "shoot",
			Aliases:     []string{"刺杀"},
			ArgFormat:   "<player>",
			Description: "name Merlin (assassin only)",
			Callback:    h.shoot,
		},
		{
			Name:        "profile",
			Aliases:     []string{"战绩"},
			Description: "show your record",
			Callback:    h.profile,
		},
		{
			Name:        "help",
			Aliases:     []string{"帮助", "菜单"},
			Description: "list commands",
			Callback:    h.help,
		},
	}
}
