package hub

import "time"

// The state, user_options, and properties payloads are hub-version-dependent,
// so they stay open string-keyed maps rather than typed structs.

type User struct {
	Name         string            `json:"name"`
	Admin        bool              `json:"admin"`
	Groups       []string          `json:"groups"`
	Server       string            `json:"server,omitempty"`
	Pending      string            `json:"pending,omitempty"`
	Created      *time.Time        `json:"created,omitempty"`
	LastActivity *time.Time        `json:"last_activity,omitempty"`
	Servers      map[string]Server `json:"servers"`
}

type Server struct {
	Name         string         `json:"name"`
	Ready        bool           `json:"ready"`
	Pending      string         `json:"pending,omitempty"`
	URL          string         `json:"url,omitempty"`
	ProgressURL  string         `json:"progress_url,omitempty"`
	Started      *time.Time     `json:"started,omitempty"`
	LastActivity *time.Time     `json:"last_activity,omitempty"`
	State        map[string]any `json:"state,omitempty"`
	UserOptions  map[string]any `json:"user_options,omitempty"`
}

type Group struct {
	Name       string         `json:"name"`
	Users      []string       `json:"users"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Service struct {
	Name    string   `json:"name"`
	Admin   bool     `json:"admin"`
	URL     string   `json:"url,omitempty"`
	Prefix  string   `json:"prefix,omitempty"`
	PID     *int     `json:"pid,omitempty"` // nil for externally managed services
	Command []string `json:"command,omitempty"`
}

// Token.Token is only present in the creation response; the hub never returns
// the secret again.
type Token struct {
	Token        string     `json:"token,omitempty"`
	ID           string     `json:"id,omitempty"`
	User         string     `json:"user,omitempty"`
	Service      string     `json:"service,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
	Note         string     `json:"note,omitempty"`
	Created      *time.Time `json:"created,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
