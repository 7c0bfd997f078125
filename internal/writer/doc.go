// Package writer implements the bulk loader for candle history.
//
// One Session loads one instrument year atomically:
//   - begin a transaction
//   - create a scratch table shaped like candle, dropped on commit
//   - COPY rows into the scratch table (CSV, ';' delimited)
//   - merge into candle with ON CONFLICT DO NOTHING, then commit
//
// The candle table's CHECK constraints are copied to the scratch table, so
// a bad row fails the COPY and the whole year is rolled back. Loading a
// year twice adds nothing the second time.
package writer
