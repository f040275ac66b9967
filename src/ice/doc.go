// Package ice implements the reservoir-sampling liveness consensus. Every
// protocol round the node pings one peer with a vector of subjects and folds
// the reported outcomes into per-subject reservoirs. Full reservoirs yield
// tentative verdicts; a streak of identical tentative verdicts promotes a
// Live or Faulty decision. When the live weight crosses the supermajority
// threshold ice emits a committee event that gates sleet and hail.
package ice
