package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cfoust/avalon/pkg/game"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Entity struct {
	ID uint `gorm:"primaryKey"`
}

type RoomRecord struct {
	Entity

	// The four digit number players use to join
	Number  string `gorm:"unique;not null;size:10"`
	Owner   string `gorm:"not null;size:64"`
	Status  string `gorm:"index;size:16"`
	Version uint64 `gorm:"not null"`
	Created time.Time
	Updated time.Time `gorm:"index"`
	// CBOR encoded game.GameState
	State []byte
}

type GameRecord struct {
	Entity

	OutcomeID string `gorm:"unique;size:36"`
	Room      string `gorm:"index;size:10"`
	Started   time.Time
	Ended     time.Time
	Winner    string            `gorm:"size:8"`
	Reason    string            `gorm:"size:16"`
	Players   []string          `gorm:"serializer:json"`
	Roles     map[string]string `gorm:"serializer:json"`
	Results   []bool            `gorm:"serializer:json"`
}

type User struct {
	Entity

	// Chat account identifier
	Player   string `gorm:"unique;not null;size:64"`
	Nickname string `gorm:"size:64"`
	// The room the user last created or joined, if any
	CurrentRoom string `gorm:"index;size:10"`
	Created     time.Time
}

// SQLStore is the source of truth for rooms, finished games and users.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)
var _ OutcomeSink = (*SQLStore)(nil)
var _ History = (*SQLStore)(nil)
var _ Users = (*SQLStore)(nil)

func InitDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&RoomRecord{},
		&GameRecord{},
		&User{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func toRoom(record *RoomRecord) (*Room, error) {
	gameState, err := game.Unmarshal(record.State)
	if err != nil {
		return nil, fmt.Errorf("could not decode room %s: %w", record.Number, err)
	}

	return &Room{
		ID:        record.Number,
		Owner:     game.PlayerID(record.Owner),
		Version:   record.Version,
		Status:    Status(record.Status),
		CreatedAt: record.Created.UTC(),
		UpdatedAt: record.Updated.UTC(),
		State:     gameState,
	}, nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Room, error) {
	var record RoomRecord
	err := s.db.WithContext(ctx).Where("number = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return toRoom(&record)
}

func (s *SQLStore) Save(ctx context.Context, room *Room) error {
	data, err := game.Marshal(room.State)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)

	if room.Version == 0 {
		record := RoomRecord{
			Number:  room.ID,
			Owner:   string(room.Owner),
			Status:  string(room.Status),
			Version: 1,
			Created: room.CreatedAt,
			Updated: room.UpdatedAt,
			State:   data,
		}
		err := db.Create(&record).Error
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}

		room.Version = 1
		return nil
	}

	result := db.Model(&RoomRecord{}).
		Where("number = ? AND version = ?", room.ID, room.Version).
		Updates(map[string]interface{}{
			"owner":   string(room.Owner),
			"status":  string(room.Status),
			"version": room.Version + 1,
			"updated": room.UpdatedAt,
			"state":   data,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrConflict
	}

	room.Version++
	return nil
}

// isUniqueViolation reports whether an insert lost a race for a unique key.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (s *SQLStore) ListByStatus(ctx context.Context, status Status) ([]*Room, error) {
	var records []RoomRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("number").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	rooms := make([]*Room, 0, len(records))
	for i := range records {
		room, err := toRoom(&records[i])
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("number = ?", id).Delete(&RoomRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Archive(ctx context.Context, outcome *game.Outcome) error {
	players := make([]string, 0, len(outcome.Players))
	for _, player := range outcome.Players {
		players = append(players, string(player))
	}

	roles := make(map[string]string, len(outcome.Roles))
	for player, role := range outcome.Roles {
		roles[string(player)] = string(role)
	}

	record := GameRecord{
		OutcomeID: outcome.ID,
		Room:      outcome.RoomID,
		Started:   outcome.StartedAt,
		Ended:     outcome.EndedAt,
		Winner:    string(outcome.Winner),
		Reason:    string(outcome.Reason),
		Players:   players,
		Roles:     roles,
		Results:   outcome.QuestResults,
	}

	return s.db.WithContext(ctx).Create(&record).Error
}

func toOutcome(record *GameRecord) *game.Outcome {
	players := make([]game.PlayerID, 0, len(record.Players))
	for _, player := range record.Players {
		players = append(players, game.PlayerID(player))
	}

	roles := make(map[game.PlayerID]game.Role, len(record.Roles))
	for player, role := range record.Roles {
		roles[game.PlayerID(player)] = game.Role(role)
	}

	return &game.Outcome{
		ID:           record.OutcomeID,
		RoomID:       record.Room,
		StartedAt:    record.Started.UTC(),
		EndedAt:      record.Ended.UTC(),
		Winner:       game.Team(record.Winner),
		Reason:       game.EndReason(record.Reason),
		Players:      players,
		Roles:        roles,
		QuestResults: record.Results,
	}
}

func (s *SQLStore) OutcomesFor(ctx context.Context, player game.PlayerID) ([]*game.Outcome, error) {
	var records []GameRecord

	// The column holds the JSON encoding of the player list, so match on
	// the same encoding. LIKE wildcards in IDs only widen the match; the
	// membership check below is exact.
	encoded, err := json.Marshal(string(player))
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Where("players LIKE ?", "%"+string(encoded)+"%").
		Order("ended, id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	outcomes := make([]*game.Outcome, 0, len(records))
	for i := range records {
		outcome := toOutcome(&records[i])
		if _, ok := outcome.Roles[player]; !ok {
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *SQLStore) user(ctx context.Context, player game.PlayerID) (*User, error) {
	user := User{
		Player:  string(player),
		Created: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).
		Where(User{Player: string(player)}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) SetNickname(ctx context.Context, player game.PlayerID, nickname string) error {
	user, err := s.user(ctx, player)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("nickname", nickname).Error
}

func (s *SQLStore) Nickname(ctx context.Context, player game.PlayerID) (string, error) {
	var user User
	err := s.db.WithContext(ctx).Where("player = ?", string(player)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return user.Nickname, err
}

func (s *SQLStore) SetCurrentRoom(ctx context.Context, player game.PlayerID, roomID string) error {
	user, err := s.user(ctx, player)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("current_room", roomID).Error
}

func (s *SQLStore) CurrentRoom(ctx context.Context, player game.PlayerID) (string, error) {
	var user User
	err := s.db.WithContext(ctx).Where("player = ?", string(player)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return user.CurrentRoom, err
}

func (s *SQLStore) ClearRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("current_room = ?", roomID).
		Update("current_room", "").Error
}
