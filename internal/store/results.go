package store

import (
	"context"
	"database/sql"
	"fmt"

	"covid-pipeline/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/bytedance/sonic"
)

// insertBatch bounds the rows per INSERT statement
const insertBatch = 200

var (
	dayColumns = []string{"job_id", "country", "date", "cases", "deaths", "population",
		"new_cases", "new_deaths", "cases_per_million", "deaths_per_million",
		"new_cases_per_million", "new_deaths_per_million"}
	monthColumns = []string{"job_id", "country", "month", "cases", "deaths", "new_cases", "new_deaths"}
	totalColumns = []string{"job_id", "rank", "country", "cases", "deaths", "population", "cases_per_thousand", "deaths_per_thousand"}
	modelColumns = []string{"job_id", "country", "p", "d", "q", "include_constant", "constant", "ar", "ma", "sigma2", "aicc", "n_obs", "first_date", "last_date"}
	pointColumns = []string{"job_id", "country", "step", "date", "mean", "intervals"}
)

// SaveCountryDays replaces the daily rows of a job
func (s *Store) SaveCountryDays(ctx context.Context, jobID string, rows []model.CountryDayMetrics) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := execx(ctx, tx, s.builder().Delete(tableCountryDays).Where(squirrel.Eq{"job_id": jobID})); err != nil {
			return err
		}
		return batches(len(rows), func(lo, hi int) error {
			q := s.builder().Insert(tableCountryDays).Columns(dayColumns...)
			for _, r := range rows[lo:hi] {
				q = q.Values(jobID, r.Country, r.Date, r.Cases, r.Deaths, r.Population,
					r.NewCases, r.NewDeaths, r.CasesPerMillion, r.DeathsPerMillion,
					r.NewCasesPerMillion, r.NewDeathsPerMillion)
			}
			_, err := execx(ctx, tx, q)
			return err
		})
	})
}

// SaveCountryMonths replaces the monthly rows of a job
func (s *Store) SaveCountryMonths(ctx context.Context, jobID string, rows []model.CountryMonth) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := execx(ctx, tx, s.builder().Delete(tableCountryMonths).Where(squirrel.Eq{"job_id": jobID})); err != nil {
			return err
		}
		return batches(len(rows), func(lo, hi int) error {
			q := s.builder().Insert(tableCountryMonths).Columns(monthColumns...)
			for _, r := range rows[lo:hi] {
				q = q.Values(jobID, r.Country, r.Month, r.Cases, r.Deaths, r.NewCases, r.NewDeaths)
			}
			_, err := execx(ctx, tx, q)
			return err
		})
	})
}

// SaveCountryTotals replaces the country totals of a job
func (s *Store) SaveCountryTotals(ctx context.Context, jobID string, rows []model.CountryTotal) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := execx(ctx, tx, s.builder().Delete(tableCountryTotals).Where(squirrel.Eq{"job_id": jobID})); err != nil {
			return err
		}
		return batches(len(rows), func(lo, hi int) error {
			q := s.builder().Insert(tableCountryTotals).Columns(totalColumns...)
			for _, r := range rows[lo:hi] {
				q = q.Values(jobID, r.Rank, r.Country, r.Cases, r.Deaths, r.Population, r.CasesPerThousand, r.DeathsPerThousand)
			}
			_, err := execx(ctx, tx, q)
			return err
		})
	})
}

// SaveForecast replaces the forecast of f.Country for a job. The observed
// history is not stored.
func (s *Store) SaveForecast(ctx context.Context, jobID string, f *model.ForecastResult) error {
	ar, err := sonic.MarshalString(nonNil(f.AR))
	if err != nil {
		return fmt.Errorf("encode AR coefficients: %w", err)
	}
	ma, err := sonic.MarshalString(nonNil(f.MA))
	if err != nil {
		return fmt.Errorf("encode MA coefficients: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		where := squirrel.Eq{"job_id": jobID, "country": f.Country}
		if _, err := execx(ctx, tx, s.builder().Delete(tableForecastPoints).Where(where)); err != nil {
			return err
		}
		if _, err := execx(ctx, tx, s.builder().Delete(tableForecasts).Where(where)); err != nil {
			return err
		}

		if _, err := execx(ctx, tx, s.builder().Insert(tableForecasts).
			Columns(modelColumns...).
			Values(jobID, f.Country, f.P, f.D, f.Q, f.IncludeConstant, f.Constant, ar, ma,
				f.Sigma2, f.AICc, f.NObs, f.FirstDate, f.LastDate)); err != nil {
			return err
		}

		return batches(len(f.Points), func(lo, hi int) error {
			q := s.builder().Insert(tableForecastPoints).Columns(pointColumns...)
			for _, p := range f.Points[lo:hi] {
				intervals, err := sonic.MarshalString(p.Intervals)
				if err != nil {
					return fmt.Errorf("encode intervals: %w", err)
				}
				q = q.Values(jobID, f.Country, p.Step, p.Date, p.Mean, intervals)
			}
			_, err := execx(ctx, tx, q)
			return err
		})
	})
}

// CountryDays returns the daily rows of one country, ordered by date
func (s *Store) CountryDays(ctx context.Context, jobID, country string) ([]model.CountryDayMetrics, error) {
	rows, err := queryx(ctx, s.db, s.builder().Select(dayColumns[1:]...).
		From(tableCountryDays).
		Where(squirrel.Eq{"job_id": jobID, "country": country}).
		OrderBy("date"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CountryDayMetrics{}
	for rows.Next() {
		var r model.CountryDayMetrics
		if err := rows.Scan(&r.Country, &r.Date, &r.Cases, &r.Deaths, &r.Population,
			&r.NewCases, &r.NewDeaths, &r.CasesPerMillion, &r.DeathsPerMillion,
			&r.NewCasesPerMillion, &r.NewDeathsPerMillion); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountryMonths returns the monthly rows of one country, ordered by month
func (s *Store) CountryMonths(ctx context.Context, jobID, country string) ([]model.CountryMonth, error) {
	rows, err := queryx(ctx, s.db, s.builder().Select(monthColumns[1:]...).
		From(tableCountryMonths).
		Where(squirrel.Eq{"job_id": jobID, "country": country}).
		OrderBy("month"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CountryMonth{}
	for rows.Next() {
		var r model.CountryMonth
		if err := rows.Scan(&r.Country, &r.Month, &r.Cases, &r.Deaths, &r.NewCases, &r.NewDeaths); err != nil {
			return nil, err
		}
		r.Month = r.Month.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountryTotals returns the ranked totals of a job. limit <= 0 returns all.
func (s *Store) CountryTotals(ctx context.Context, jobID string, limit int) ([]model.CountryTotal, error) {
	q := s.builder().Select(totalColumns[1:]...).
		From(tableCountryTotals).
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("rank")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	rows, err := queryx(ctx, s.db, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CountryTotal{}
	for rows.Next() {
		var r model.CountryTotal
		if err := rows.Scan(&r.Rank, &r.Country, &r.Cases, &r.Deaths, &r.Population, &r.CasesPerThousand, &r.DeathsPerThousand); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Forecast returns the stored forecast of one country
func (s *Store) Forecast(ctx context.Context, jobID, country string) (*model.ForecastResult, error) {
	where := squirrel.Eq{"job_id": jobID, "country": country}

	var (
		f      model.ForecastResult
		ar, ma string
	)
	err := getx(ctx, s.db, s.builder().Select(modelColumns[1:]...).From(tableForecasts).Where(where),
		&f.Country, &f.P, &f.D, &f.Q, &f.IncludeConstant, &f.Constant, &ar, &ma,
		&f.Sigma2, &f.AICc, &f.NObs, &f.FirstDate, &f.LastDate)
	if err != nil {
		return nil, err
	}
	f.FirstDate, f.LastDate = f.FirstDate.UTC(), f.LastDate.UTC()
	if err := sonic.UnmarshalString(ar, &f.AR); err != nil {
		return nil, fmt.Errorf("decode AR coefficients: %w", err)
	}
	if err := sonic.UnmarshalString(ma, &f.MA); err != nil {
		return nil, fmt.Errorf("decode MA coefficients: %w", err)
	}

	rows, err := queryx(ctx, s.db, s.builder().Select("step", "date", "mean", "intervals").
		From(tableForecastPoints).
		Where(where).
		OrderBy("step"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	f.Points = []model.ForecastPoint{}
	for rows.Next() {
		var (
			p         model.ForecastPoint
			intervals string
		)
		if err := rows.Scan(&p.Step, &p.Date, &p.Mean, &intervals); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		if err := sonic.UnmarshalString(intervals, &p.Intervals); err != nil {
			return nil, fmt.Errorf("decode intervals: %w", err)
		}
		f.Points = append(f.Points, p)
	}
	return &f, rows.Err()
}

// batches calls fn for consecutive [lo, hi) ranges of at most insertBatch rows.
func batches(n int, fn func(lo, hi int) error) error {
	for lo := 0; lo < n; lo += insertBatch {
		hi := lo + insertBatch
		if hi > n {
			hi = n
		}
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
