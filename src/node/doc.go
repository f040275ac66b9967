// Package node hosts the frost consensus actor wiring. A Node owns one
// instance of each engine (ice, sleet, hail), routes inbound transport
// requests to them, and drives their protocol rounds from dedicated loops.
// Engines never talk to the network themselves; the node performs all
// sampling fan-out and posts the tallied results back into the engines.
package node
