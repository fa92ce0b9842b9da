// Package facematch provides face geometry and naming helpers shared by the
// capture loop, enrollment and CLI commands.
package facematch
