// Package backend defines the pluggable generation capability that turns
// an exercise record into raw model output, the fixed set of backend
// profiles, and the shared failure taxonomy.
package backend
