package config

type WebIngress struct {
	Port int `yaml:"port"`
}

type IngressSettings struct {
	Web WebIngress `yaml:"web"`
	// Commands a single connection may issue per second, and the burst on
	// top of that.
	CommandsPerSecond float64 `yaml:"commandsPerSecond"`
	Burst             int     `yaml:"burst"`
	// Signs the tokens chat bridges hand to players. Serving refuses to
	// start without one.
	Secret string `yaml:"secret"`
	// Lifetime of tokens issued by `avalon token`.
	TokenHours int `yaml:"tokenHours"`
}

type ServerSettings struct {
	Ingress IngressSettings `yaml:"ingress"`
}

type DatabaseSettings struct {
	// Path to the sqlite database. Rooms are kept in memory when empty.
	Path string `yaml:"path"`
	// Upper bound on one locked load/modify/save of a room.
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

type RedisSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Budget for a single cache call before falling back to the database.
	TimeoutMillis int `yaml:"timeoutMillis"`
}

type GameSettings struct {
	// How long players have to vote or play a quest card.
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	// Good players may only play success.
	StrictQuests bool `yaml:"strictQuests"`
}

type ReconcilerSettings struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
}

type JanitorSettings struct {
	IntervalMinutes     int `yaml:"intervalMinutes"`
	EndedHours          int `yaml:"endedHours"`
	WaitingEmptyHours   int `yaml:"waitingEmptyHours"`
	WaitingStalledHours int `yaml:"waitingStalledHours"`
	PlayingStalledHours int `yaml:"playingStalledHours"`
}

type Config struct {
	Server     ServerSettings     `yaml:"server"`
	Database   DatabaseSettings   `yaml:"database"`
	Redis      RedisSettings      `yaml:"redis"`
	Game       GameSettings       `yaml:"game"`
	Reconciler ReconcilerSettings `yaml:"reconciler"`
	Janitor    JanitorSettings    `yaml:"janitor"`
}
