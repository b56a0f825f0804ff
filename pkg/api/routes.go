package api

import "github.com/gorilla/mux"

// Route names, used for handler lookup and as the route label on
// request metrics.
const (
	Trigger       = "Trigger"
	Ping          = "Ping"
	Version       = "Version"
	RenderPlayers = "RenderPlayers"
)

// NewRouter constructs the daemon's API router. Requests that match no
// route get a plain 404; the status-mapping contract (300/400/500)
// applies only to update runs.
func NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Name(Trigger).Methods("POST").Path("/v1/update")
	r.NewRoute().Name(Ping).Methods("GET").Path("/v1/ping")
	r.NewRoute().Name(Version).Methods("GET").Path("/v1/version")
	r.NewRoute().Name(RenderPlayers).Methods("POST").Path("/v1/players/render")

	return r
}
