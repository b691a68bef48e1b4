package models

// Application represents a registered calling application. Applications
// authenticate with an API key and may carry a feature allowlist; an empty
// allowlist admits every feature.
type Application struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	APIKey   string   `json:"-" yaml:"api_key"`
	Features []string `json:"features,omitempty" yaml:"features"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`
}

// AllowsFeature reports whether the application may invoke the feature.
// An empty allowlist admits everything; a named feature must be listed.
func (a *Application) AllowsFeature(feature string) bool {
	if len(a.Features) == 0 || feature == "" {
		return true
	}
	for _, f := range a.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Feature is an admin-managed capability flag referenced by contracts
type Feature struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}
