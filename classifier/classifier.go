package classifier

import (
	"go-pulsemap/types"
	"regexp"
	"strings"
	"unicode/utf8"
)

// severityTiers is evaluated in order; the first tier with a matching keyword wins.
var severityTiers = []struct {
	severity types.Severity
	keywords []string
}{
	{types.Critical, []string{
		"drap", "mord", "skyteepisode", "skyting", "knivstikking", "gisselsituasjon",
		"terror", "bomb", "eksplosjon", "livstruende", "alvorlig", "kritisk",
		"død", "dødelig", "voldtekt", "ran med våpen",
	}},
	{types.High, []string{
		"ran", "brann", "vold", "trusler", "skadet", "ambulanse", "nødetater", "rømning",
		"ulykke", "kollisjon", "trafikkulykke", "innbrudd", "tyveri",
	}},
	{types.Medium, []string{
		"støy", "ordensforstyrrelser", "trafikk", "parkering", "hærverk", "slagsmål", "bråk",
	}},
	{types.Low, []string{
		"melding", "hittegods", "assistance", "kontroll", "viltpåkjørsel",
	}},
}

// category substrings used when no keyword matched
var (
	highCategories   = []string{"vold", "ran", "brann"}
	mediumCategories = []string{"trafikk", "tyveri", "hærverk"}
)

var (
	closedStatusPhrases      = []string{"avsluttet", "ferdig", "løst"}
	closedDescriptionPhrases = []string{"avsluttet", "ingen tiltak"}
	updatedStatusPhrases     = []string{"oppdatert", "pågår"}
)

// ClassifySeverity maps an incident to a severity from its category, description and title.
func ClassifySeverity(incident types.RawIncident) types.Severity {
	category := strings.ToLower(incident.Category)
	combined := category + " " + strings.ToLower(incident.Description) + " " + strings.ToLower(incident.Title)

	for _, tier := range severityTiers {
		if containsAny(combined, tier.keywords) {
			return tier.severity
		}
	}

	if containsAny(category, highCategories) {
		return types.High
	}
	if containsAny(category, mediumCategories) {
		return types.Medium
	}
	return types.Info
}

// ClassifyStatus derives whether an incident is still active, has been updated or is closed.
// Closure wins over update.
func ClassifyStatus(incident types.RawIncident) types.Status {
	status := strings.ToLower(incident.Status)
	description := strings.ToLower(incident.Description)

	if containsAny(status, closedStatusPhrases) || containsAny(description, closedDescriptionPhrases) {
		return types.Closed
	}
	if containsAny(status, updatedStatusPhrases) || incident.LastModified != nil {
		return types.Updated
	}
	return types.Active
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopWords = map[string]bool{
	"og": true, "i": true, "på": true, "til": true, "fra": true, "med": true, "av": true,
	"for": true, "er": true, "har": true, "det": true, "en": true, "et": true, "som": true,
	"var": true, "om": true, "være": true, "ved": true, "ikke": true, "den": true,
}

const maxKeywords = 10

// ExtractKeywords returns up to ten distinct words longer than three letters, in order of appearance.
func ExtractKeywords(incident types.RawIncident) []string {
	combined := strings.ToLower(incident.Category + " " + incident.Description + " " + incident.Title)

	seen := make(map[string]bool)
	var keywords []string
	for _, word := range wordPattern.FindAllString(combined, -1) {
		if utf8.RuneCountInString(word) <= 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
