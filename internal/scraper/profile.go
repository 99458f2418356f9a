// ABOUTME: Scrape profiles: the ordered source tables and the post style of each producer
// ABOUTME: Holds the ambito.com exchange-rate endpoints used by the dolar_arg and dolar profiles

package scraper

import "strings"

// Source is one labelled upstream endpoint.
type Source struct {
	Label string
	URL   string
}

// Glyphs decorate the variation line by its class.
type Glyphs struct {
	Up    string
	Down  string
	Equal string
}

// For maps an upstream class-variacion value to its glyph.
func (g Glyphs) For(class string) string {
	switch class {
	case "up":
		return g.Up
	case "down":
		return g.Down
	case "equal":
		return g.Equal
	default:
		return ""
	}
}

// Style selects how a block title is rendered.
type Style int

const (
	// StyleHashtag renders "#DolarBlue".
	StyleHashtag Style = iota
	// StyleTitle renders "*Dolar Blue:*".
	StyleTitle
)

// Profile is one producer. Name is both the record source type and the
// service tag of the channels that receive its posts.
type Profile struct {
	Name    string
	Sources []Source
	Glyphs  Glyphs
	Style   Style
}

const ambito = "https://mercados.ambito.com"

// DolarArg is the current Argentine exchange-rate profile.
var DolarArg = Profile{
	Name: "dolar_arg",
	Sources: []Source{
		{"dolar_oficial", ambito + "/dolar/oficial/variacion"},
		{"dolar_banco_nacion", ambito + "/dolarnacion/variacion"},
		{"dolar_turista", ambito + "/dolarturista/variacion"},
		{"dolar_blue", ambito + "/dolar/informal/variacion"},
		{"dolar_mep", ambito + "/dolarrava/mep/variacion"},
		{"dolar_cripto", ambito + "/dolarcripto/variacion"},
		{"dolar_ccl", ambito + "/dolarrava/cl/variacion"},
		{"dolar_mayorista", ambito + "/dolar/mayorista/variacion"},
		{"euro", ambito + "/euro/variacion"},
		{"euro_blue", ambito + "/euro/informal/variacion"},
	},
	Glyphs: Glyphs{Up: "🟢", Down: "🔴", Equal: "🟡"},
	Style:  StyleHashtag,
}

// Dolar is the legacy profile kept for channels still subscribed to it.
var Dolar = Profile{
	Name: "dolar",
	Sources: []Source{
		{"dolar_blue", ambito + "/dolar/informal/variacion"},
		{"dolar_banco_nacion", ambito + "/dolarnacion/variacion"},
		{"euro", ambito + "/euro/variacion"},
		{"dolar_turista", ambito + "/dolarturista/variacion"},
		{"dolar_cripto", ambito + "/dolarcripto/variacion"},
		{"dolar_ccl", ambito + "/dolarrava/cl/variacion"},
		{"dolar_oficial", ambito + "/dolar/oficial/variacion"},
		{"dolar_mep", ambito + "/dolarrava/mep/variacion"},
		{"euro_blue", ambito + "/euro/informal/variacion"},
		{"dolar_mayorista", ambito + "/dolar/mayorista/variacion"},
		{"dolar_futuro", ambito + "/dolarfuturo/variacion"},
	},
	Glyphs: Glyphs{Up: "🔺", Down: "🔻", Equal: "🔹"},
	Style:  StyleTitle,
}

var profiles = map[string]Profile{
	DolarArg.Name: DolarArg,
	Dolar.Name:    Dolar,
}

// ProfileByName returns a built-in profile.
func ProfileByName(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	return []string{DolarArg.Name, Dolar.Name}
}

// Title renders a label in the profile's style.
func (p Profile) Title(label string) string {
	words := titleWords(label)
	if p.Style == StyleTitle {
		return "*" + strings.Join(words, " ") + ":*"
	}
	return "#" + strings.Join(words, "")
}

// DisplayName renders a label as "Dolar Banco Nacion".
func DisplayName(label string) string {
	return strings.Join(titleWords(label), " ")
}

func titleWords(label string) []string {
	words := strings.Split(label, "_")
	out := words[:0]
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, strings.ToUpper(w[:1])+w[1:])
	}
	return out
}
