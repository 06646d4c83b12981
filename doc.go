/*
Package sqlgraph turns natural-language questions into validated SQL.

An Engine drives a fixed workflow graph: the question is rewritten, relevant
tables and columns are recalled from a retriever, a plan of SQL and Python
steps is drafted by the language model, each SQL step is synthesized, scored,
executed and checked for semantic consistency, and a report is streamed at
the end. Repair loops are bounded by Config.

# Usage

	eng, err := sqlgraph.New(sqlgraph.Deps{
		LLM:         openai.New(openai.Config{Model: "gpt-4o-mini"}),
		Retriever:   index,
		Database:    sqldb.NewRouter().Handle(sqldb.New(), "mysql", "sqlite"),
		Datasources: memory.NewDatasources(ds),
	}, sqlgraph.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Start(ctx, sqlgraph.StartRequest{Query: "上月华东区销售额", ScopeID: "sales"},
		func(e domain.Event) { fmt.Println(e.Type, e.Payload) })

# Review

With HumanReviewEnabled the run suspends before executing the plan. The engine
stores a checkpoint, emits a json event of type "human_review" carrying the
plan, and completes with "awaiting_review". Resume continues the session with
the reviewer's decision; a rejection sends the feedback back to the planner.
*/
package sqlgraph
