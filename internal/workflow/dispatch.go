package workflow

import (
	"github.com/aretw0/sqlgraph/internal/runtime"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

func failed(st *domain.State) bool {
	return st.Has(KeyFailure)
}

func afterRewrite(st *domain.State) runtime.NodeID {
	if failed(st) {
		return End
	}
	return KeywordExtract
}

func afterSchemaRecall(st *domain.State) runtime.NodeID {
	if failed(st) {
		return End
	}
	return TableRelation
}

func afterTableRelation(maxRetries int) runtime.Dispatcher {
	return func(st *domain.State) runtime.NodeID {
		if failed(st) {
			return End
		}
		if st.Has(KeyTableRelationError) {
			if domain.ValueOr[int](st, KeyTableRelationRetryCount) <= maxRetries {
				return TableRelation
			}
			return End
		}
		return Planner
	}
}

func afterPlanner(st *domain.State) runtime.NodeID {
	if failed(st) {
		return End
	}
	return PlanExecutor
}

func afterPlanExecutor(st *domain.State) runtime.NodeID {
	if failed(st) {
		return End
	}
	switch next := runtime.NodeID(domain.ValueOr[string](st, KeyPlanNextNode)); next {
	case SQLExecute, PythonGenerate, ReportGenerator, HumanFeedback, Planner:
		return next
	}
	return End
}

func afterSQLExecute(st *domain.State) runtime.NodeID {
	switch {
	case failed(st):
		return End
	case st.Has(KeySQLExecuteError):
		return SQLGenerate
	}
	return SemanticConsistency
}

func afterSQLGenerate(st *domain.State) runtime.NodeID {
	if failed(st) || domain.ValueOr[bool](st, KeySQLGenerateFailed) {
		return End
	}
	return SQLExecute
}

func afterSemantic(st *domain.State) runtime.NodeID {
	switch {
	case failed(st):
		return End
	case st.Has(KeySemanticRecommendation):
		return SQLGenerate
	}
	return PlanExecutor
}

func afterPythonExecute(maxRetries int) runtime.Dispatcher {
	return func(st *domain.State) runtime.NodeID {
		if failed(st) {
			return End
		}
		if st.Has(KeyPythonError) {
			if domain.ValueOr[int](st, KeyPythonRetryCount) <= maxRetries {
				return PythonGenerate
			}
			return End
		}
		return PythonAnalyze
	}
}

func afterHumanFeedback(st *domain.State) runtime.NodeID {
	if domain.ValueOr[bool](st, KeyPlanApproved) {
		return PlanExecutor
	}
	return Planner
}
