package domain

import (
	"net"
	"strings"
	"time"
)

type CloudConfig struct {
	ID               string `json:"id"`
	Secret           string `json:"secret,omitempty"`
	LocalFQDN        string `json:"local_fqdn"`
	FQDN             string `json:"fqdn"`
	SignalingAddress string `json:"signaling_address,omitempty"`
}

type ComponentConfig struct {
	Name       string                 `json:"name"`
	Namespace  string                 `json:"namespace,omitempty"`
	Type       string                 `json:"type"`
	Model      string                 `json:"model"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type ConfigResponse struct {
	Cloud      CloudConfig       `json:"cloud"`
	Components []ComponentConfig `json:"components,omitempty"`
	// set by the client when the cloud returns a config timestamp
	ReceivedAt *time.Time        `json:"-"`
}

// AppClientConfig carries what a cloud client needs to identify the robot.
// The builder records the resolved public host on it before the loop starts.
type AppClientConfig struct {
	RobotID    string
	Secret     string
	AppAddress string
	RPCHost    string
	IP         net.IP
}

func (c *AppClientConfig) SetRPCHost(host string) {
	c.RPCHost = host
}

func (c *AppClientConfig) SetIP(ip net.IP) {
	c.IP = ip
}

// CloudIdentity is the naming derived from a CloudConfig. It never changes
// once computed.
type CloudIdentity struct {
	LocalFQDN string
	Name      string
	FQDN      string
}

func NewCloudIdentity(c CloudConfig) CloudIdentity {
	name, _, _ := strings.Cut(c.LocalFQDN, ".")
	return CloudIdentity{
		LocalFQDN: c.LocalFQDN,
		Name:      name,
		FQDN:      c.FQDN,
	}
}

// RecordNames returns the advertised instance names, local first.
func (id CloudIdentity) RecordNames() []string {
	return []string{
		strings.ReplaceAll(id.LocalFQDN, ".", "-"),
		strings.ReplaceAll(id.FQDN, ".", "-"),
	}
}
