package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	StorageDir   string             `mapstructure:"storage_dir" json:"storage_dir"`
	UsersFile    string             `mapstructure:"users_file" json:"users_file"`
	Conversation ConversationConfig `mapstructure:"conversation" json:"conversation"`
	Remind       RemindConfig       `mapstructure:"remind" json:"remind"`
	Server       ServerConfig       `mapstructure:"server" json:"server"`
	Channels     ChannelsConfig     `mapstructure:"channels" json:"channels"`
}

type ConversationConfig struct {
	// TTLMinutes is how long an idle task-creation session survives
	// before the next inbound event discards it. 0 keeps sessions until
	// overwritten or the process restarts.
	TTLMinutes int `mapstructure:"ttl_minutes" json:"ttl_minutes"`
}

type RemindConfig struct {
	// Hour is the daily wall-clock hour (0-23) of the reminder sweep.
	Hour int `mapstructure:"hour" json:"hour"`
	// Dedupe suppresses repeated same-day announcements of the same
	// task. Off by default: a manual run after the daily one re-nudges.
	Dedupe bool `mapstructure:"dedupe" json:"dedupe"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`
	Key     string `mapstructure:"key" json:"key,omitempty"`
}

type ChannelsConfig struct {
	IRC      IRCConfig      `mapstructure:"irc" json:"irc"`
	Whatsapp WhatsappConfig `mapstructure:"whatsapp" json:"whatsapp"`
}

type IRCConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Nick     string `mapstructure:"nick" json:"nick"`
	User     string `mapstructure:"user" json:"user"`
	Realname string `mapstructure:"realname" json:"realname"`
	TLS      bool   `mapstructure:"tls" json:"tls"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	// Broadcast is the team channel reminders and confirmations go to.
	Broadcast string         `mapstructure:"broadcast" json:"broadcast"`
	NickServ  NickServConfig `mapstructure:"nickserv" json:"nickserv"`
}

type NickServConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Password string `mapstructure:"password" json:"password,omitempty"`
}

type WhatsappConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Broadcast is the group JID that receives team-wide messages.
	// WhatsApp is a send-only notification channel here.
	Broadcast string `mapstructure:"broadcast" json:"broadcast"`
}

func Load(override string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	appDir := filepath.Join(home, ".taskherd")
	if _, err := os.Stat(appDir); os.IsNotExist(err) {
		_ = os.MkdirAll(appDir, 0755)
	}

	// Environment overrides
	if envDir := os.Getenv("TASKHERD_STORAGE_DIR"); envDir != "" {
		appDir = envDir
		_ = os.MkdirAll(appDir, 0755)
	}

	viper.SetDefault("remind.hour", 9)
	viper.SetDefault("remind.dedupe", false)
	viper.SetDefault("conversation.ttl_minutes", 60)
	viper.SetDefault("server.addr", "127.0.0.1:8731")
	viper.SetDefault("channels.irc.port", 6667)

	if override != "" {
		viper.AddConfigPath(".")
		viper.SetConfigFile(override)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appDir)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = appDir
	}
	if strings.HasPrefix(cfg.StorageDir, "~/") {
		cfg.StorageDir = filepath.Join(home, cfg.StorageDir[2:])
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = filepath.Join(cfg.StorageDir, "users.yaml")
	}

	// The run hour ships as an environment variable in most deployments.
	if envHour := os.Getenv("TASKHERD_REMIND_HOUR"); envHour != "" {
		h, err := strconv.Atoi(envHour)
		if err != nil {
			return nil, fmt.Errorf("invalid TASKHERD_REMIND_HOUR %q: %w", envHour, err)
		}
		cfg.Remind.Hour = h
	}
	if cfg.Remind.Hour < 0 || cfg.Remind.Hour > 23 {
		return nil, fmt.Errorf("remind.hour %d out of range", cfg.Remind.Hour)
	}

	// Credentials may be inline $VAR placeholders or plain env values.
	cfg.Server.Key = expandEnv(cfg.Server.Key)
	cfg.Channels.IRC.Password = expandEnv(cfg.Channels.IRC.Password)
	cfg.Channels.IRC.NickServ.Password = expandEnv(cfg.Channels.IRC.NickServ.Password)

	return &cfg, nil
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "$") {
		if envVal := os.Getenv(strings.TrimPrefix(v, "$")); envVal != "" {
			return envVal
		}
		return ""
	}
	return v
}
