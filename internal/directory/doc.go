// Package directory resolves people in ShotGrid: who is running the tool,
// which supervisors a name refers to, and which programme year a student is
// in. A Session owns the connected service and the listings fetched when it
// was created.
package directory
