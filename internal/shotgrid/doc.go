// Package shotgrid is a small client for the ShotGrid REST API. It covers the
// operations the project creator needs: script authentication, filtered
// searches with pagination, entity creation and entity updates.
package shotgrid
