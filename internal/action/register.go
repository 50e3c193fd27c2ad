package action

import (
	"net/http"

	"github.com/Csepi/cal3-sub006/internal/event"
	"github.com/Csepi/cal3-sub006/internal/notify"
)

// Deps are the external collaborators the executors act through.
type Deps struct {
	Events    event.Store
	Calendars event.CalendarStore
	Notifier  notify.Notifier

	// HTTPClient overrides the outbound webhook client; nil gets the
	// default 10-second-timeout client.
	HTTPClient *http.Client
}

// RegisterAll populates the registry with every built-in executor in one
// explicit, ordered list. Any registration error (a duplicate type) is a
// deployment fault; callers should treat it as fatal at startup.
func RegisterAll(r *Registry, deps Deps) error {
	executors := []Executor{
		NewSetColor(deps.Events),
		NewAddTag(deps.Events),
		NewUpdateTitle(deps.Events),
		NewUpdateDescription(deps.Events),
		NewCancelEvent(deps.Events),
		NewMoveCalendar(deps.Events, deps.Calendars),
		NewCreateTask(deps.Events),
		NewSendNotification(deps.Notifier),
		NewWebhook(deps.HTTPClient),
	}
	for _, e := range executors {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}
