/*
Package schema models the relational schema handed to the LLM stages.

Tables and columns are assembled from retrieved documents; foreign keys are
kept in their "table.column=table.column" string form and parsed on demand.
*/
package schema
