package models

type Config struct {
	Snowflake      Snowflake        `yaml:"snowflake"`
	Sources        []Source         `yaml:"sources"`
	Reconciliation Reconciliation   `yaml:"reconciliation"`
	ViewRepos      []ViewRepository `yaml:"view_repositories"`
}

type Snowflake struct {
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Timeout   string `yaml:"timeout"` // Connection timeout, e.g. "30s"
}

// Source describes one company feed. Granularity is how the feed reports
// (daily or monthly); Align is the granularity rows must have in the unified
// fact table. A daily feed aligned to monthly gets rolled up before merging.
type Source struct {
	Name         string `yaml:"name"`
	Company      string `yaml:"company"`
	Granularity  string `yaml:"granularity"`   // "daily" or "monthly"
	Align        string `yaml:"align"`         // target granularity; defaults to Granularity
	StagingTable string `yaml:"staging_table"` // Bronze-layer table read when no --file is given
}

// Reconciliation holds the merge policy for the unified fact table.
// Database/Schema are passed explicitly to every warehouse call; there is no
// ambient catalog state.
type Reconciliation struct {
	Database         string         `yaml:"database"`
	Schema           string         `yaml:"schema"`
	FactTable        string         `yaml:"fact_table"`
	QuarantineTable  string         `yaml:"quarantine_table"`
	KeyFields        []string       `yaml:"key_fields"`        // ordered; defaults to date, customer_id, product_id, source
	MonthlyAlignment string         `yaml:"monthly_alignment"` // "truncate" (default) or "round"
	Sentinels        []SentinelRule `yaml:"sentinels"`
}

// SentinelRule maps placeholder values a feed uses for "unknown" to a typed
// default for one column.
type SentinelRule struct {
	Column  string   `yaml:"column"`
	Values  []string `yaml:"values"`
	Default string   `yaml:"default"`
}

// ViewRepository is a git repository (or local directory) holding gold-layer
// view DDL deployed by `medallion deploy-views`.
type ViewRepository struct {
	Name     string `yaml:"name"`
	GitURL   string `yaml:"git_url"`
	Branch   string `yaml:"branch"`
	Path     string `yaml:"path"` // Sub-directory holding the SQL files; blank means repo root
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}
