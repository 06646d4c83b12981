package domain

// Datasource holds the connection parameters of a scope's database.
type Datasource struct {
	ID      string `json:"id" yaml:"id" mapstructure:"id"`
	Scope   string `json:"scope" yaml:"scope" mapstructure:"scope"`
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Dialect string `json:"dialect" yaml:"dialect" mapstructure:"dialect"`
	DSN     string `json:"-" yaml:"dsn" mapstructure:"dsn"`
	Active  bool   `json:"active" yaml:"active" mapstructure:"active"`
}

// QueryResult is the tabular output of a SQL statement.
type QueryResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// StepResult records what a plan step produced.
type StepResult struct {
	StepNumber int          `json:"step"`
	Tool       ToolName     `json:"tool"`
	SQL        string       `json:"sql,omitempty"`
	Result     *QueryResult `json:"result,omitempty"`
	Output     string       `json:"output,omitempty"`
}

// HumanFeedback is the resume payload of the review interrupt.
type HumanFeedback struct {
	Approved bool   `json:"approved"`
	Text     string `json:"feedback_text,omitempty"`
}
