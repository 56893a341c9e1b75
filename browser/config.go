package browser

const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
)

// Config selects how sessions are started.
type Config struct {
	Headless     bool
	RemoteURL    string // DevTools endpoint of a remote browser; empty launches a local one
	ChromePath   string // local browser binary; empty uses the one found on PATH
	WindowWidth  int
	WindowHeight int
	LaunchRate   float64 // session starts per second; 0 means unlimited
}

// DefaultConfig returns an interactive local configuration.
func DefaultConfig() Config {
	return Config{
		WindowWidth:  DefaultWindowWidth,
		WindowHeight: DefaultWindowHeight,
	}
}

// Endpoint describes where sessions are created, for logs and errors.
func (c Config) Endpoint() string {
	if c.RemoteURL != "" {
		return c.RemoteURL
	}
	if c.ChromePath != "" {
		return c.ChromePath
	}
	return "local chrome"
}

func (c Config) windowSize() (int, int) {
	w, h := c.WindowWidth, c.WindowHeight
	if w <= 0 {
		w = DefaultWindowWidth
	}
	if h <= 0 {
		h = DefaultWindowHeight
	}
	return w, h
}
