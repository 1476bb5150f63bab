package main

import (
	"fmt"
	"time"

	"github.com/cfoust/avalon/pkg/config"
)

// ServeFlags override the configuration files from the command line.
type ServeFlags struct {
	DB           string `name:"db" help:"Path to the sqlite database, or :memory: to keep rooms in memory." placeholder:"PATH"`
	StrictQuests bool   `name:"strict-quests" help:"Only allow good players to play success on quests."`
	Port         int    `help:"Port to serve the websocket and API on." placeholder:"PORT"`
	Timeout      int    `name:"timeout" help:"Seconds players have to vote or play a quest card." placeholder:"SECONDS"`
}

const MEMORY_DB = ":memory:"

func (f ServeFlags) Apply(settings *config.Config) error {
	switch f.DB {
	case "":
	case MEMORY_DB:
		settings.Database.Path = ""
	default:
		settings.Database.Path = f.DB
	}

	if f.StrictQuests {
		settings.Game.StrictQuests = true
	}

	if f.Port != 0 {
		settings.Server.Ingress.Web.Port = f.Port
	}

	if f.Timeout != 0 {
		settings.Game.TimeoutSeconds = f.Timeout
	}

	err := settings.Validate()
	if err != nil {
		return fmt.Errorf("invalid command line flags: %v", err)
	}
	return nil
}

// tokenLifetime is how long a freshly issued token lasts.
func tokenLifetime(settings *config.Config, hours int) time.Duration {
	if hours <= 0 {
		hours = settings.Server.Ingress.TokenHours
	}
	return time.Duration(hours) * time.Hour
}
