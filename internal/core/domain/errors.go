package domain

import "errors"

var (
	ErrLowerPriority       = errors.New("offer priority does not exceed running session")
	ErrWebRTCNotConfigured = errors.New("webrtc not configured")
	ErrServerAlreadyBuilt  = errors.New("server builder already consumed")
	ErrMissingCollaborator = errors.New("required collaborator not configured")
	ErrCloudClientClosed   = errors.New("cloud client closed")
	ErrSignalingClosed     = errors.New("signaling stream closed")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrConfigNotFound      = errors.New("config not found")
	ErrListenerClosed      = errors.New("listener closed")
)
