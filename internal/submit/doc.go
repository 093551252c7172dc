// Package submit runs the write sequence that turns a validated draft into a
// ShotGrid project: supervisor promotion, project creation and pipeline
// configuration creation. The sequence is not transactional.
package submit
