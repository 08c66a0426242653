// Package embedservice puts a sliding-window request budget in front of the
// embedding client and reports partial batch outcomes.
package embedservice
