package hub

import (
	"errors"
	"net/http"

	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/rpc"
	"github.com/irhub/irhub/internal/sender"
)

// writeError maps a handler error to the stable apierr envelope before
// writing it, so package-private sentinels never leak a raw Go error
// string to the client.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		apierr.WriteJSON(w, apiErr)
		return
	}

	var routingErr *rpc.AgentRoutingError
	if errors.As(err, &routingErr) {
		apierr.WriteJSON(w, apierr.New(routingErr.StatusCode, routingErr.Code, routingErr.Message))
		return
	}

	switch {
	case errors.Is(err, catalog.ErrUnknownRemote), errors.Is(err, catalog.ErrUnknownButton), errors.Is(err, catalog.ErrUnknownAgent):
		apierr.WriteJSON(w, apierr.NotFound)
	case errors.Is(err, catalog.ErrEmptyName), errors.Is(err, catalog.ErrEmptyKey), errors.Is(err, sender.ErrInvalidRequest):
		apierr.WriteJSON(w, apierr.Validation.WithMessage(err.Error()))
	case errors.Is(err, catalog.ErrPressMissing):
		apierr.WriteJSON(w, apierr.PressMissing)
	case errors.Is(err, catalog.ErrMasterKeyMissing):
		apierr.WriteJSON(w, apierr.MasterKeyMissing)
	case errors.Is(err, catalog.ErrDecryptFailed):
		apierr.WriteJSON(w, apierr.MqttPasswordDecryptFailed)
	default:
		apierr.WriteJSON(w, err)
	}
}
