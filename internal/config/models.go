package config

import (
	"sort"
	"time"

	"github.com/muurk/appliancectl/internal/retry"
)

// Registry represents the entire user configuration file.
// It stores connection profiles and retry preferences.
type Registry struct {
	Version        int                 `yaml:"version" validate:"eq=1"`
	DefaultProfile string              `yaml:"default_profile,omitempty"`
	Profiles       map[string]*Profile `yaml:"profiles,omitempty" validate:"dive"` // Keyed by profile name
	Preferences    *Preferences        `yaml:"preferences,omitempty"`
}

// Profile describes how to reach one appliance.
// Passwords are NEVER stored: they come from a flag, the environment or a prompt.
type Profile struct {
	Host     string    `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int       `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Username string    `yaml:"username,omitempty"`
	Insecure bool      `yaml:"insecure,omitempty"` // Skip TLS verification (self-signed management certificate)
	LastUsed time.Time `yaml:"last_used,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	Retry *RetryPrefs `yaml:"retry,omitempty"`
}

// RetryPrefs overrides the built-in retry policies.
type RetryPrefs struct {
	Ready         retry.Policy `yaml:"ready,omitempty"`   // Readiness probes
	Active        retry.Policy `yaml:"active,omitempty"`  // Failover status probe
	Request       retry.Policy `yaml:"request,omitempty"` // Transport retry of a single request
	ImmediateFail bool         `yaml:"immediate_fail,omitempty"`
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Profiles:    make(map[string]*Profile),
		Preferences: defaultPreferences(),
	}
}

func defaultPreferences() *Preferences {
	return &Preferences{
		Retry: &RetryPrefs{
			Ready:   retry.DefaultPolicy,
			Active:  retry.DefaultPolicy,
			Request: retry.ShortPolicy,
		},
	}
}

// GetProfile retrieves a profile by name.
// Returns nil if the profile doesn't exist in the registry.
func (r *Registry) GetProfile(name string) *Profile {
	return r.Profiles[name]
}

// ResolveProfile returns the named profile, or the default profile when
// name is empty. The second value is the resolved name.
func (r *Registry) ResolveProfile(name string) (*Profile, string) {
	if name == "" {
		name = r.DefaultProfile
	}
	if name == "" {
		return nil, ""
	}
	return r.Profiles[name], name
}

// SetProfile adds or replaces a profile. The first profile becomes the default.
func (r *Registry) SetProfile(name string, p *Profile) {
	if r.Profiles == nil {
		r.Profiles = make(map[string]*Profile)
	}
	r.Profiles[name] = p
	if r.DefaultProfile == "" {
		r.DefaultProfile = name
	}
}

// RemoveProfile deletes a profile and reports whether it existed.
func (r *Registry) RemoveProfile(name string) bool {
	if _, ok := r.Profiles[name]; !ok {
		return false
	}
	delete(r.Profiles, name)
	if r.DefaultProfile == name {
		r.DefaultProfile = ""
	}
	return true
}

// ProfileNames returns every profile name in sorted order.
func (r *Registry) ProfileNames() []string {
	names := make([]string, 0, len(r.Profiles))
	for name := range r.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TouchProfile records that a profile was just used.
func (r *Registry) TouchProfile(name string) {
	if p := r.Profiles[name]; p != nil {
		p.LastUsed = time.Now()
	}
}

// RetryPreferences returns the retry preferences with built-in defaults
// filled in for unset policies.
func (r *Registry) RetryPreferences() RetryPrefs {
	def := defaultPreferences().Retry
	if r.Preferences == nil || r.Preferences.Retry == nil {
		return *def
	}
	p := *r.Preferences.Retry
	if p.Ready.IsZero() {
		p.Ready = def.Ready
	}
	if p.Active.IsZero() {
		p.Active = def.Active
	}
	if p.Request.IsZero() {
		p.Request = def.Request
	}
	return p
}
