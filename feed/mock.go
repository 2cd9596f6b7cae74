package feed

import (
	"context"
	"go-pulsemap/types"
	"strings"
	"time"

	"github.com/juju/clock"
)

type mockRecord struct {
	id          string
	age         time.Duration
	modifiedAge time.Duration
	location    string
	category    string
	subcategory string
	title       string
	description string
	status      string
}

var mockRecords = []mockRecord{
	{
		id: "mock-001", age: 30 * time.Minute,
		location: "Storgata 15", category: "Trafikkulykke",
		title:       "Trafikkulykke med personskade",
		description: "Politiet rykket ut til en trafikkulykke på Storgata. En bil og en sykkel kolliderte. Syklist lettere skadet og kjørt til sykehus. Trafikken dirigeres forbi stedet.",
		status:      "Pågår",
	},
	{
		id: "mock-002", age: time.Hour,
		location: "Karl Johans gate 22", category: "Tyveri", subcategory: "Butikktyveri",
		title:       "Anmeldt tyveri fra butikk",
		description: "Politiet fikk melding om tyveri fra butikk i sentrum. En person observert forlate butikken med stjålne varer. Politiet har fått signalement og søker etter gjerningsperson.",
		status:      "Under etterforskning",
	},
	{
		id: "mock-003", age: 90 * time.Minute, modifiedAge: time.Hour,
		location: "Grünerløkka", category: "Ordensforstyrrelser",
		title:       "Støyklager",
		description: "Politiet fikk melding om støyklager fra beboere i området. Patrulje rykket ut og ba de ansvarlige om å dempe musikken. Situasjonen er nå avsluttet.",
		status:      "Avsluttet",
	},
	{
		id: "mock-004", age: 2 * time.Hour,
		location: "Majorstuen T-banestasjon", category: "Ran",
		title:       "Forsøk på ran",
		description: "Politiet fikk melding om forsøk på ran ved T-banestasjonen. Fornærmet ikke fysisk skadet. Gjerningsperson stakk fra stedet. Politiet jobber med etterforskning.",
		status:      "Under etterforskning",
	},
	{
		id: "mock-005", age: 150 * time.Minute,
		location: "Aker Brygge", category: "Hærverk",
		title:       "Hærverk mot kjøretøy",
		description: "Anmeldt hærverk mot parkert kjøretøy ved Aker Brygge. Vindu knust. Politiet har tatt foto av skadestedet og etterforsker saken.",
		status:      "Under etterforskning",
	},
	{
		id: "mock-006", age: 3 * time.Hour,
		location: "Vigelandsparken", category: "Melding",
		title:       "Savnet person funnet",
		description: "En person som ble meldt savnet tidligere i dag er nå funnet i god behold i Vigelandsparken. Pårørende er varslet.",
		status:      "Avsluttet",
	},
	{
		id: "mock-007", age: 210 * time.Minute,
		location: "E18 ved Lysaker", category: "Trafikkulykke",
		title:       "Trafikkuhell - materielle skader",
		description: "Politiet på stedet etter trafikkuhell på E18. To biler involvert. Kun materielle skader. Trafikken går sakte forbi ulykkesstedet.",
		status:      "Pågår",
	},
	{
		id: "mock-008", age: 4 * time.Hour,
		location: "Sofienberg park", category: "Narkotika",
		title:       "Beslag av narkotika",
		description: "Politipatrulje stanset person i Sofienberg park. Ved kontroll ble det funnet mindre mengde narkotika. Person pågrepet og vil bli fremstilt for varetektsfengsling.",
		status:      "Avsluttet",
	},
	{
		id: "mock-009", age: 270 * time.Minute,
		location: "Oslo S", category: "Vold",
		title:       "Slagsmål",
		description: "Politiet rykket ut til melding om slagsmål ved Oslo S. To personer involvert. Begge parter er identifisert og anmeldt for vold. Ingen alvorlige skader.",
		status:      "Under etterforskning",
	},
	{
		id: "mock-010", age: 5 * time.Hour,
		location: "Frogner", category: "Innbrudd",
		title:       "Innbrudd i leilighet",
		description: "Politiet fikk anmeldelse om innbrudd i leilighet i Frogner. Innbrudd skjedde mens beboere var borte. Verdisaker stjålet. Krimteknikere har undersøkt åstedet.",
		status:      "Under etterforskning",
	},
	{
		id: "mock-011", age: 330 * time.Minute,
		location: "Bogstadveien", category: "Brann",
		title:       "Brann i søppelcontainer",
		description: "Politiet og brannvesen rykket ut til brann i søppelcontainer på Bogstadveien. Brannen er slukket. Ingen personskader. Årsak under etterforskning.",
		status:      "Avsluttet",
	},
	{
		id: "mock-012", age: 6 * time.Hour,
		location: "Torggata", category: "Vinningskriminalitet", subcategory: "Lommetyveri",
		title:       "Lommetyveri anmeldt",
		description: "Person anmeldte lommetyveri etter å ha oppdaget at lommebok var stjålet. Hendelsen skal ha skjedd i travle Torggata. Politiet oppfordrer til ekstra årvåkenhet.",
		status:      "Under etterforskning",
	},
}

const mockDistrict = "Oslo"

// MockSource serves a fixed set of Oslo incidents timed relative to its clock.
type MockSource struct {
	clock clock.Clock
}

func NewMockSource(clk clock.Clock) *MockSource {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MockSource{clock: clk}
}

func (m *MockSource) all() []types.RawIncident {
	now := m.clock.Now().UTC()
	incidents := make([]types.RawIncident, 0, len(mockRecords))
	for _, r := range mockRecords {
		inc := types.RawIncident{
			ID:          r.id,
			Published:   now.Add(-r.age),
			Location:    r.location,
			District:    mockDistrict,
			Category:    r.category,
			Subcategory: r.subcategory,
			Title:       r.title,
			Description: r.description,
			Status:      r.status,
		}
		if r.modifiedAge > 0 {
			modified := now.Add(-r.modifiedAge)
			inc.LastModified = &modified
		}
		incidents = append(incidents, inc)
	}
	return incidents
}

// FetchIncidents filters by district (case-insensitive) and an inclusive published window.
// Zero bounds are open.
func (m *MockSource) FetchIncidents(_ context.Context, district string, from, to time.Time) ([]types.RawIncident, error) {
	var out []types.RawIncident
	for _, inc := range m.all() {
		if district != "" && !strings.EqualFold(inc.District, district) {
			continue
		}
		if !from.IsZero() && inc.Published.Before(from) {
			continue
		}
		if !to.IsZero() && inc.Published.After(to) {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

func (m *MockSource) FetchIncidentByID(_ context.Context, id string) (*types.RawIncident, error) {
	for _, inc := range m.all() {
		if inc.ID == id {
			return &inc, nil
		}
	}
	return nil, nil
}

func (m *MockSource) HealthCheck(context.Context) bool {
	return true
}
