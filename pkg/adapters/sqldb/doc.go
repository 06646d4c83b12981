/*
Package sqldb implements ports.Database over database/sql.

Accessor opens one pool per datasource with the driver matching its dialect
(go-sql-driver/mysql for mysql and mariadb, modernc.org/sqlite for sqlite).
Router dispatches each query to the accessor registered for the datasource
dialect, so postgres can be served by the pgx adapter next to them.

Every accessor refuses statements that are not read-only.
*/
package sqldb
