package settings

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "PALAVER"

	KeyBaseURL        = "base-url"
	KeyConversationID = "conversation-id"

	DefaultBaseURL        = "http://localhost:5000"
	DefaultConversationID = "default"
)

// Settings are resolved once at startup and stay fixed for the process.
type Settings struct {
	BaseURL        string `yaml:"base-url" json:"base_url"`
	ConversationID string `yaml:"conversation-id" json:"conversation_id"`
}

// AddFlags registers the connection flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyBaseURL, DefaultBaseURL, "Base URL of the chat backend")
	fs.String(KeyConversationID, DefaultConversationID, "Conversation to talk in")
}

// LoadDotEnv reads .env files into the process environment. Missing files
// are fine; variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("could not load env file")
		}
	}
}

// InitViper sets up env lookup and reads the config file, either configPath
// or palaver.yaml / config.yaml from the usual places.
func InitViper(v *viper.Viper, configPath string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyConversationID, DefaultConversationID)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("palaver")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".palaver"))
		}
		if xdg, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(xdg, "palaver"))
		}
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not read config")
	}
	return nil
}

// FromViper resolves settings from v. Empty values fall back to the defaults.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		BaseURL:        strings.TrimSpace(v.GetString(KeyBaseURL)),
		ConversationID: strings.TrimSpace(v.GetString(KeyConversationID)),
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.ConversationID == "" {
		s.ConversationID = DefaultConversationID
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return s, nil
}

func (s *Settings) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return errors.Wrapf(err, "invalid %s %q", KeyBaseURL, s.BaseURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("invalid %s %q: must be an absolute http or https URL", KeyBaseURL, s.BaseURL)
	}
	if s.ConversationID == "" {
		return errors.Errorf("%s must not be empty", KeyConversationID)
	}
	return nil
}
