package api

// ViewerHeader names the viewer on requests whose result depends on who asks.
// Identity is trusted as given; shelfcache does not authenticate.
const ViewerHeader = "X-Viewer-ID"

// Origin write throttling.
const (
	defaultOriginWriteRate = 120 // requests per minute per client
	maxOriginPageLimit     = 100
)
