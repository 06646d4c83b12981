// Package workflow assembles the question-to-report graph: understanding,
// schema recall, planning, SQL and Python steps, review and reporting.
package workflow

import (
	"errors"
	"log/slog"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/internal/pool"
	"github.com/aretw0/sqlgraph/internal/recall"
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/internal/sqlgen"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// Node IDs.
const (
	Rewrite             runtime.NodeID = "rewrite"
	KeywordExtract      runtime.NodeID = "keyword_extract"
	SchemaRecall        runtime.NodeID = "schema_recall"
	TableRelation       runtime.NodeID = "table_relation"
	Planner             runtime.NodeID = "planner"
	PlanExecutor        runtime.NodeID = "plan_executor"
	SQLGenerate         runtime.NodeID = "sql_generate"
	SQLExecute          runtime.NodeID = "sql_execute"
	PythonGenerate      runtime.NodeID = "python_generate"
	PythonExecute       runtime.NodeID = "python_execute"
	PythonAnalyze       runtime.NodeID = "python_analyze"
	SemanticConsistency runtime.NodeID = "semantic_consistency"
	ReportGenerator     runtime.NodeID = "report_generator"
	HumanFeedback       runtime.NodeID = "human_feedback"
	End                                = runtime.End
)

// Config holds the workflow limits.
type Config struct {
	MaxSQLRounds       int     `mapstructure:"max_sql_rounds"`
	QualityThreshold   float64 `mapstructure:"quality_threshold"`
	MaxSQLRepairs      int     `mapstructure:"max_sql_repairs"`
	MaxPlanRepairs     int     `mapstructure:"max_plan_repairs"`
	MaxRelationRetries int     `mapstructure:"max_relation_retries"`
	MaxPythonRetries   int     `mapstructure:"max_python_retries"`
	SemanticFailMarker string  `mapstructure:"semantic_fail_marker"`
	MaxSteps           int     `mapstructure:"max_steps"`
	HumanReview        bool    `mapstructure:"human_review"`

	Retrieval recall.Config `mapstructure:"-"`
	// SampleValues attaches distinct column values to the recalled schema.
	SampleValues bool `mapstructure:"-"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxSQLRounds:       sqlgen.DefaultMaxRounds,
		QualityThreshold:   sqlgen.DefaultThreshold,
		MaxSQLRepairs:      5,
		MaxPlanRepairs:     3,
		MaxRelationRetries: 3,
		MaxPythonRetries:   3,
		SemanticFailMarker: "不通过",
		MaxSteps:           runtime.DefaultMaxSteps,
		Retrieval: recall.Config{
			TopKTables:         recall.DefaultTopKTables,
			MaxColumnsPerTable: recall.DefaultMaxColumnsPerTable,
			MaxColumns:         recall.DefaultMaxColumns,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSQLRounds <= 0 {
		c.MaxSQLRounds = d.MaxSQLRounds
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = d.QualityThreshold
	}
	if c.MaxSQLRepairs <= 0 {
		c.MaxSQLRepairs = d.MaxSQLRepairs
	}
	if c.MaxPlanRepairs <= 0 {
		c.MaxPlanRepairs = d.MaxPlanRepairs
	}
	if c.MaxRelationRetries < 0 {
		c.MaxRelationRetries = d.MaxRelationRetries
	}
	if c.MaxPythonRetries < 0 {
		c.MaxPythonRetries = d.MaxPythonRetries
	}
	if c.SemanticFailMarker == "" {
		c.SemanticFailMarker = d.SemanticFailMarker
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	return c
}

// Deps are the collaborators the nodes call.
type Deps struct {
	LLM         ports.LLM
	Retriever   ports.Retriever
	Database    ports.Database
	Datasources ports.DatasourceResolver
	// Runner executes Python steps. Plans with Python steps fail without it.
	Runner ports.CodeRunner
	Pool   *pool.Pool
	Logger *slog.Logger
	Hooks  domain.LifecycleHooks
}

func (d Deps) validate() error {
	var errs []error
	if d.LLM == nil {
		errs = append(errs, errors.New("llm is required"))
	}
	if d.Retriever == nil {
		errs = append(errs, errors.New("retriever is required"))
	}
	if d.Database == nil {
		errs = append(errs, errors.New("database is required"))
	}
	if d.Datasources == nil {
		errs = append(errs, errors.New("datasource resolver is required"))
	}
	return errors.Join(errs...)
}

type nodes struct {
	Deps
	cfg    Config
	loop   *sqlgen.Loop
	recall *recall.Service
}

// New builds and compiles the workflow graph.
func New(deps Deps, cfg Config) (*runtime.Compiled, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Pool == nil {
		deps.Pool = pool.New(8)
	}
	cfg = cfg.withDefaults()

	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	n := &nodes{
		Deps: deps,
		cfg:  cfg,
		loop: sqlgen.NewLoop(deps.LLM,
			sqlgen.WithMaxRounds(cfg.MaxSQLRounds),
			sqlgen.WithThreshold(cfg.QualityThreshold),
			sqlgen.WithLogger(deps.Logger),
			sqlgen.WithRoundHook(deps.Hooks.OnRepairRound),
		),
		recall: recall.New(deps.Retriever, deps.Pool,
			recall.WithConfig(cfg.Retrieval),
			recall.WithLogger(deps.Logger),
		),
	}

	g := runtime.NewGraph().
		AddNode(Rewrite, n.rewrite).
		AddNode(KeywordExtract, n.keywordExtract).
		AddNode(SchemaRecall, n.schemaRecall).
		AddNode(TableRelation, n.tableRelation).
		AddNode(Planner, n.planner).
		AddNode(PlanExecutor, n.planExecutor).
		AddNode(SQLGenerate, n.sqlGenerate).
		AddNode(SQLExecute, n.sqlExecute).
		AddNode(SemanticConsistency, n.semanticConsistency).
		AddNode(PythonGenerate, n.pythonGenerate).
		AddNode(PythonExecute, n.pythonExecute).
		AddNode(PythonAnalyze, n.pythonAnalyze).
		AddNode(ReportGenerator, n.reportGenerator).
		AddNode(HumanFeedback, n.humanFeedback).
		SetEntry(Rewrite)

	g.AddConditionalEdges(Rewrite, afterRewrite, KeywordExtract, End).
		AddEdge(KeywordExtract, SchemaRecall).
		AddConditionalEdges(SchemaRecall, afterSchemaRecall, TableRelation, End).
		AddConditionalEdges(TableRelation, afterTableRelation(cfg.MaxRelationRetries), TableRelation, Planner, End).
		AddConditionalEdges(Planner, afterPlanner, PlanExecutor, End).
		AddConditionalEdges(PlanExecutor, afterPlanExecutor,
			SQLExecute, PythonGenerate, ReportGenerator, HumanFeedback, Planner, End).
		AddConditionalEdges(SQLExecute, afterSQLExecute, SQLGenerate, SemanticConsistency, End).
		AddConditionalEdges(SQLGenerate, afterSQLGenerate, SQLExecute, End).
		AddConditionalEdges(SemanticConsistency, afterSemantic, PlanExecutor, SQLGenerate, End).
		AddEdge(PythonGenerate, PythonExecute).
		AddConditionalEdges(PythonExecute, afterPythonExecute(cfg.MaxPythonRetries), PythonAnalyze, PythonGenerate, End).
		AddEdge(PythonAnalyze, PlanExecutor).
		AddEdge(ReportGenerator, End).
		AddConditionalEdges(HumanFeedback, afterHumanFeedback, PlanExecutor, Planner).
		InterruptBefore(HumanFeedback)

	return g.Compile(reg,
		runtime.WithLogger(deps.Logger),
		runtime.WithLifecycleHooks(deps.Hooks),
		runtime.WithMaxSteps(cfg.MaxSteps),
	)
}
