// Package server exposes the HTTP surface: the dashboard page, the viewer
// WebSocket endpoint, and the health/metrics endpoints.
package server
