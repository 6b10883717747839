package realtime

import (
	"encoding/json"
	"log"
	"time"

	"github.com/KamogeloT/MediFlow/internal/feed"
	"github.com/KamogeloT/MediFlow/internal/models"
)

type eventEnvelope struct {
	Type      string            `json:"type"`
	Entry     models.QueueEntry `json:"entry"`
	CreatedAt time.Time         `json:"created_at"`
}

// Bridge connects the change feed to the hub. Subscribe returns the feed
// unsubscribe function.
func Bridge(sync *feed.Synchronizer, h *Hub) func() {
	return sync.Subscribe(func(event feed.Event) {
		env := eventEnvelope{Type: string(event.Kind), Entry: event.Entry, CreatedAt: event.CreatedAt}
		payload, err := json.Marshal(env)
		if err != nil {
			log.Printf("marshal realtime event: %v", err)
			return
		}
		h.Broadcast(payload, event.Entry.Department)
	})
}
