package cmds

import (
	"github.com/go-go-golems/palaver/pkg/backend"
	"github.com/go-go-golems/palaver/pkg/controller"
	"github.com/go-go-golems/palaver/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// newController resolves settings and wires a controller to the HTTP backend.
func newController() (*controller.Controller, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	client, err := backend.NewHTTPClient(s.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "could not create backend client")
	}

	c, err := controller.New(client, s.ConversationID)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("base_url", s.BaseURL).
		Str("conversation_id", s.ConversationID).
		Msg("controller ready")
	return c, nil
}
