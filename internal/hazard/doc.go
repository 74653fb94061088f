// Package hazard implements the multi-state credit-rating transition
// engine: it converts per-entity rating histories into time-to-event
// episodes, fits one cause-specific proportional-hazards model per
// transition type (upgrade, downgrade, default, withdrawal) over the
// pooled episodes, and scores entities for finite-horizon transition
// probabilities.
//
// The package performs no I/O beyond structured logging. Fitting is
// deterministic for a given episode pool and configuration, including
// under parallel execution.
package hazard
