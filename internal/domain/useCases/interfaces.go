package useCases

import (
	"net/http"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// AlertBroadcaster pushes finished alerts to locally connected dashboard
// clients over WebSocket (a secondary, best-effort fan-out).
type AlertBroadcaster interface {
	BroadcastAlert(alert *model.Alert)
	Handler() func(http.ResponseWriter, *http.Request)
}
