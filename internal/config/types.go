package config

import "time"

type Config struct {
	DiscordToken        string `env:"DISCORD_TOKEN"`
	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	DataDir             string `env:"DATA_DIR" envDefault:"./data"`
	YTDLPCookies        string `env:"YTDLP_COOKIES"`

	AudioNodeURL    string `env:"AUDIO_NODE_URL" envDefault:"ws://localhost:8080/ws"`
	DashboardAddr   string `env:"DASHBOARD_ADDR" envDefault:":3001"`
	DashboardOrigin string `env:"DASHBOARD_ORIGIN"`

	DisconnectTimeout time.Duration `env:"DISCONNECT_TIMEOUT" envDefault:"5m"`
	DefaultVolume     int           `env:"DEFAULT_VOLUME" envDefault:"80"`
	MaxQueueSize      int           `env:"MAX_QUEUE_SIZE" envDefault:"500"`
	RequeueOnRepeat   bool          `env:"REQUEUE_ON_REPEAT" envDefault:"true"`
	PlaylistLimit     int           `env:"PLAYLIST_LIMIT" envDefault:"50"`
	LyricsCacheTTL    time.Duration `env:"LYRICS_CACHE_TTL" envDefault:"1h"`

	RegisterCommandsGlobally bool   `env:"REGISTER_COMMANDS_GLOBALLY" envDefault:"false"`
	BotStatus                string `env:"BOT_STATUS" envDefault:"online"` // online/dnd/idle
	BotActivity              string `env:"BOT_ACTIVITY" envDefault:"music"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console/json
}
