package pipeline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ticker-ingest/internal/config"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
)

const defaultPricePeriod = "1mo"

// Plan selects what the acquisition stage fetches for an entity.
type Plan struct {
	Statements  []model.StatementKind
	Periods     []model.Period
	PricePeriod string
	WriteJSON   bool
}

// planFile is the YAML shape of a plan.
type planFile struct {
	Statements  []string `yaml:"statements"`
	Periods     []string `yaml:"periods"`
	PricePeriod string   `yaml:"price_period"`
	WriteJSON   bool     `yaml:"write_json"`
}

// DefaultPlan fetches all three statements for both periods and one month
// of prices.
func DefaultPlan() Plan {
	return Plan{
		Statements:  []model.StatementKind{model.StatementIncome, model.StatementBalance, model.StatementCash},
		Periods:     []model.Period{model.PeriodAnnual, model.PeriodQuarter},
		PricePeriod: defaultPricePeriod,
	}
}

// LoadPlan reads a YAML plan. Omitted lists fall back to the defaults.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, eris.Wrapf(err, "pipeline: read plan %s", path)
	}
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Plan{}, eris.Wrapf(err, "pipeline: parse plan %s", path)
	}
	return parsePlan(pf)
}

// PlanFromConfig builds the plan from the acquire config section. A plan
// file, when set, takes precedence over the inline lists.
func PlanFromConfig(cfg config.AcquireConfig, writeJSON bool) (Plan, error) {
	if cfg.PlanFile != "" {
		p, err := LoadPlan(cfg.PlanFile)
		if err != nil {
			return Plan{}, err
		}
		p.WriteJSON = p.WriteJSON || writeJSON
		return p, nil
	}
	return parsePlan(planFile{
		Statements:  cfg.Statements,
		Periods:     cfg.Periods,
		PricePeriod: cfg.PricePeriod,
		WriteJSON:   writeJSON,
	})
}

func parsePlan(pf planFile) (Plan, error) {
	p := Plan{PricePeriod: pf.PricePeriod, WriteJSON: pf.WriteJSON}
	for _, s := range pf.Statements {
		k, err := model.ParseStatementKind(s)
		if err != nil {
			return Plan{}, eris.Wrap(err, "pipeline: plan statements")
		}
		p.Statements = append(p.Statements, k)
	}
	for _, s := range pf.Periods {
		per, err := model.ParsePeriod(s)
		if err != nil {
			return Plan{}, eris.Wrap(err, "pipeline: plan periods")
		}
		p.Periods = append(p.Periods, per)
	}
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func (p Plan) withDefaults() Plan {
	d := DefaultPlan()
	if len(p.Statements) == 0 {
		p.Statements = d.Statements
	}
	if len(p.Periods) == 0 {
		p.Periods = d.Periods
	}
	if p.PricePeriod == "" {
		p.PricePeriod = d.PricePeriod
	}
	return p
}

// Validate checks the price lookback period.
func (p Plan) Validate() error {
	if _, err := provider.PeriodStart(p.PricePeriod, time.Now()); err != nil {
		return eris.Wrap(err, "pipeline: plan price_period")
	}
	return nil
}

// Includes reports whether a statement artifact is part of the plan.
func (p Plan) Includes(s model.StatementSpec) bool {
	return containsKind(p.Statements, s.Kind) && containsPeriod(p.Periods, s.Period)
}

// Artifacts lists the repairable artifacts the plan produces, in canonical
// order.
func (p Plan) Artifacts() []model.ArtifactName {
	p = p.withDefaults()
	names := []model.ArtifactName{model.ArtifactProfile, model.ArtifactPrices}
	for _, s := range model.StatementSpecs() {
		if p.Includes(s) {
			names = append(names, s.Name)
		}
	}
	return names
}

func containsKind(ks []model.StatementKind, k model.StatementKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func containsPeriod(ps []model.Period, p model.Period) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}
