package presence

import "github.com/genricoloni/rfpresence/internal/domain"

// SentinelTitle is what the page reports when no media is loaded
const SentinelTitle = "Nothing playing"

// Profile holds the branding strings and asset keys used in payloads
type Profile struct {
	// ArtistFallback is the state line when the track has no artist
	ArtistFallback string `toml:"artist_fallback"`

	LogoKey       string `toml:"logo_key"`
	LogoText      string `toml:"logo_text"`
	ListeningIcon string `toml:"listening_icon"`
	ListeningText string `toml:"listening_text"`
	IdleDetails   string `toml:"idle_details"`
	IdleState     string `toml:"idle_state"`
	IdleLogoText  string `toml:"idle_logo_text"`

	Buttons []ButtonConfig `toml:"buttons"`
}

// ButtonConfig is a button as written in the config file
type ButtonConfig struct {
	Label string `toml:"label"`
	URL   string `toml:"url"`
}

// DefaultProfile returns the RF Music branding
func DefaultProfile() Profile {
	return Profile{
		ArtistFallback: "On RF Music",
		LogoKey:        "rf_logo_main",
		LogoText:       "RF Music",
		ListeningIcon:  "rf_icon_listening",
		ListeningText:  "RF Productions Music",
		IdleDetails:    "Browse RF Music",
		IdleState:      "Discovering new sounds...",
		IdleLogoText:   "RF Productions Music",
		Buttons: []ButtonConfig{
			{Label: "Visit RF Music", URL: "https://rfproductionshq.com/radio"},
		},
	}
}

// buttons converts the configured buttons, keeping at most domain.MaxButtons
func (p Profile) buttons() []domain.Button {
	n := min(len(p.Buttons), domain.MaxButtons)
	out := make([]domain.Button, 0, n)
	for _, b := range p.Buttons[:n] {
		out = append(out, domain.Button{Label: truncate(b.Label), URL: b.URL})
	}
	return out
}
