package discord

import (
	"unicode/utf8"

	"github.com/genricoloni/rfpresence/internal/domain"
)

type activity struct {
	Type       int         `json:"type"`
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *timestamps `json:"timestamps,omitempty"`
	Assets     *assets     `json:"assets,omitempty"`
	Buttons    []button    `json:"buttons,omitempty"`
}

// timestamps are epoch milliseconds on the wire
type timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

type button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// toActivity converts a payload to its wire form; nil stays nil and clears
// the activity
func toActivity(p *domain.PresencePayload) *activity {
	if p == nil {
		return nil
	}

	a := &activity{
		Type:    int(p.Type),
		Details: padShort(p.Details),
		State:   padShort(p.State),
	}

	if p.StartTimestamp != nil || p.EndTimestamp != nil {
		a.Timestamps = &timestamps{}
		if p.StartTimestamp != nil {
			a.Timestamps.Start = *p.StartTimestamp * 1000
		}
		if p.EndTimestamp != nil {
			a.Timestamps.End = *p.EndTimestamp * 1000
		}
	}

	if p.LargeImageKey != "" || p.SmallImageKey != "" {
		a.Assets = &assets{
			LargeImage: p.LargeImageKey,
			LargeText:  padShort(p.LargeImageText),
			SmallImage: p.SmallImageKey,
			SmallText:  padShort(p.SmallImageText),
		}
	}

	for i, b := range p.Buttons {
		if i == domain.MaxButtons {
			break
		}
		a.Buttons = append(a.Buttons, button{Label: b.Label, URL: b.URL})
	}

	return a
}

// padShort extends one-character strings, Discord rejects text shorter than two
func padShort(s string) string {
	if utf8.RuneCountInString(s) == 1 {
		return s + "\u200b"
	}
	return s
}
