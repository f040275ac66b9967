// Package sleet implements the Avalanche-style DAG consensus over cell
// transactions. Conflict sets are built per spent output: a transaction that
// spends m outputs participates in m conflict sets and is only uncontested
// when every one of them is a singleton. Repeated sampling queries set chits,
// chits accumulate into conviction over the DAG's progeny, and conviction
// drives the per-set preference counters that decide acceptance.
package sleet
