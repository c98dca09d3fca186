// Package session tracks who controls which device. A control session wraps
// the exclusive-ownership token from the device lock coordinator with
// operator-facing metadata so the HTTP surface can show current owners.
package session

import "time"

// Session is one device-control session. The session id is the token the
// lock coordinator was given; releasing requires presenting it back.
type Session struct {
	ID           string    `json:"session_id"`
	DeviceKey    string    `json:"device_key"`
	HostName     string    `json:"host_name"`
	DeviceID     string    `json:"device_id"`
	Owner        string    `json:"owner,omitempty"`
	ScriptName   string    `json:"script_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
