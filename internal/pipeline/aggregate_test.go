package pipeline

import (
	"errors"
	"math/rand"
	"testing"

	"covid-pipeline/internal/model"

	"github.com/shopspring/decimal"
)

func lookupTable() *model.RawTable {
	return &model.RawTable{
		Source: "lookup",
		Header: []string{"UID", "Admin2", "Province_State", "Country_Region", "Combined_Key", "Population"},
		Rows: [][]string{
			{"1", "", "", "X", "X", "100"},
			{"2", "", "P", "X", "P, X", "50"},
			{"3", "County", "P", "X", "County, P, X", "10"},
			{"4", "", "P", "X", "P, X duplicate", "999"},
			{"5", "", "", "Y", "Y", ""},
		},
	}
}

func TestJoinObservations(t *testing.T) {
	cases := []model.LongObservation{
		{Country: "X", Date: day(22), Metric: model.MetricCases, Value: 5},
		{Country: "X", Date: day(23), Metric: model.MetricCases, Value: 7},
	}
	deaths := []model.LongObservation{
		{Country: "X", Date: day(23), Metric: model.MetricDeaths, Value: 1},
		{Country: "Z", Date: day(23), Metric: model.MetricDeaths, Value: 2},
	}

	got := JoinObservations(cases, deaths)
	want := []model.Observation{
		{Country: "X", Date: day(22), Cases: 5, Deaths: 0},
		{Country: "X", Date: day(23), Cases: 7, Deaths: 1},
		{Country: "Z", Date: day(23), Cases: 0, Deaths: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEnrichPopulation(t *testing.T) {
	obs := []model.Observation{
		{SubRegion: "", Country: "X", Date: day(22), Cases: 1},
		{SubRegion: "P", Country: "X", Date: day(22), Cases: 1},
		{SubRegion: "", Country: "Y", Date: day(22), Cases: 1},
		{SubRegion: "", Country: "Z", Date: day(22), Cases: 1},
	}

	got, stats, err := EnrichPopulation(obs, lookupTable(), testSchema)
	if err != nil {
		t.Fatalf("EnrichPopulation() error = %v", err)
	}

	if stats.LookupRows != 3 || stats.Duplicates != 1 || stats.Matched != 3 || stats.Unmatched != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if !got[0].Population.Valid || !got[0].Population.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("X population = %v", got[0].Population)
	}
	// county rows are skipped and the first of two duplicate keys wins
	if !got[1].Population.Decimal.Equal(decimal.NewFromInt(50)) || got[1].CombinedKey != "P, X" {
		t.Errorf("P, X = %v %q", got[1].Population, got[1].CombinedKey)
	}
	if got[2].Population.Valid {
		t.Errorf("Y has an empty population cell, got %v", got[2].Population)
	}
	if got[3].Population.Valid || got[3].CombinedKey != "" {
		t.Errorf("Z is not in the lookup, got %+v", got[3])
	}
}

func TestEnrichPopulationMissingColumn(t *testing.T) {
	lookup := &model.RawTable{
		Header: []string{"Province_State", "Country_Region"},
		Rows:   [][]string{{"", "X"}},
	}
	_, _, err := EnrichPopulation(nil, lookup, testSchema)
	if !errors.Is(err, ErrSchemaDrift) {
		t.Errorf("error = %v, want ErrSchemaDrift", err)
	}
}

func TestAggregateToyExample(t *testing.T) {
	cases, err := Reshape(toyCases(), model.MetricCases, testSchema)
	if err != nil {
		t.Fatal(err)
	}
	joined := JoinObservations(cases, nil)
	enriched, _, err := EnrichPopulation(joined, lookupTable(), testSchema)
	if err != nil {
		t.Fatal(err)
	}

	positive := FilterPositive(enriched)
	if len(positive) != 5 {
		t.Fatalf("FilterPositive kept %d rows, want 5", len(positive))
	}

	days := AggregateCountryDays(positive)
	if len(days) != 3 {
		t.Fatalf("got %d country days, want 3", len(days))
	}

	wantCases := []int64{1, 3, 4}
	wantPop := []int64{100, 150, 150}
	for i, d := range days {
		if d.Country != "X" || !d.Date.Equal(day(22+i)) {
			t.Errorf("day %d = %s %v", i, d.Country, d.Date)
		}
		if d.Cases != wantCases[i] {
			t.Errorf("day %d cases = %d, want %d", i, d.Cases, wantCases[i])
		}
		// the zero-case sub-region is filtered out on the first day
		if !d.Population.Decimal.Equal(decimal.NewFromInt(wantPop[i])) {
			t.Errorf("day %d population = %v, want %d", i, d.Population, wantPop[i])
		}
	}

	metrics := DeriveDaily(days)
	if metrics[2].NewCases != 1 {
		t.Errorf("new cases on the last day = %d, want 1", metrics[2].NewCases)
	}
}

func TestAggregateCountryDaysPopulation(t *testing.T) {
	pop := func(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }
	rows := []model.EnrichedObservation{
		{Observation: model.Observation{SubRegion: "a", Country: "B", Date: day(22), Cases: 2, Deaths: 1}, Population: pop(1000)},
		{Observation: model.Observation{SubRegion: "b", Country: "B", Date: day(22), Cases: 3}},
		{Observation: model.Observation{Country: "A", Date: day(23), Cases: 1}},
		{Observation: model.Observation{Country: "A", Date: day(22), Cases: 1}},
	}

	days := AggregateCountryDays(rows)
	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	if days[0].Country != "A" || !days[0].Date.Equal(day(22)) || days[1].Country != "A" || days[2].Country != "B" {
		t.Errorf("days not sorted by country then date: %+v", days)
	}
	if days[0].Population.Valid || days[0].DeathsPerMillion.Valid {
		t.Errorf("A has no population, got %v / %v", days[0].Population, days[0].DeathsPerMillion)
	}

	b := days[2]
	if b.Cases != 5 || b.Deaths != 1 {
		t.Errorf("B = %d cases %d deaths, want 5 and 1", b.Cases, b.Deaths)
	}
	if !b.Population.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("B population = %v, want 1000", b.Population)
	}
	if !b.DeathsPerMillion.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("B deaths per million = %v, want 1000", b.DeathsPerMillion)
	}
}

// cumulativeRows builds non-decreasing sub-region series that start at
// different days, with leading zero-case days.
func cumulativeRows(rng *rand.Rand, countries, subRegions, days int) []model.EnrichedObservation {
	var rows []model.EnrichedObservation
	for c := 0; c < countries; c++ {
		country := string(rune('A' + c))
		for s := 0; s < subRegions; s++ {
			onset := rng.Intn(days)
			var cases, deaths int64
			for d := 0; d < days; d++ {
				if d >= onset {
					cases += int64(rng.Intn(20))
					deaths += int64(rng.Intn(3))
					if deaths > cases {
						deaths = cases
					}
				}
				rows = append(rows, model.EnrichedObservation{Observation: model.Observation{
					SubRegion: string(rune('a' + s)),
					Country:   country,
					Date:      day(1 + d),
					Cases:     cases,
					Deaths:    deaths,
				}})
			}
		}
	}
	return rows
}

func TestAggregateSumsSubRegions(t *testing.T) {
	rows := FilterPositive(cumulativeRows(rand.New(rand.NewSource(7)), 3, 4, 20))

	type key struct {
		country string
		date    int64
	}
	want := make(map[key][2]int64)
	for _, r := range rows {
		k := key{r.Country, r.Date.Unix()}
		v := want[k]
		v[0] += r.Cases
		v[1] += r.Deaths
		want[k] = v
	}

	days := AggregateCountryDays(rows)
	if len(days) != len(want) {
		t.Fatalf("got %d country days, want %d", len(days), len(want))
	}
	for _, d := range days {
		w := want[key{d.Country, d.Date.Unix()}]
		if d.Cases != w[0] || d.Deaths != w[1] {
			t.Errorf("%s %s = %d/%d, want %d/%d", d.Country, d.Date.Format("2006-01-02"), d.Cases, d.Deaths, w[0], w[1])
		}
	}
}

func TestAggregateKeepsCumulativeOrder(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		days := AggregateCountryDays(FilterPositive(cumulativeRows(rand.New(rand.NewSource(seed)), 2, 5, 30)))
		for i := 1; i < len(days); i++ {
			prev, cur := days[i-1], days[i]
			if prev.Country != cur.Country {
				continue
			}
			if cur.Cases < prev.Cases || cur.Deaths < prev.Deaths {
				t.Errorf("seed %d: %s decreased on %s: %d/%d after %d/%d", seed, cur.Country,
					cur.Date.Format("2006-01-02"), cur.Cases, cur.Deaths, prev.Cases, prev.Deaths)
			}
		}
	}
}
