package opcua

import (
	"errors"
	"time"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint        string        `yaml:"endpoint" validate:"required"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	// Namespace is the vendor/user namespace exported to the catalog.
	// Namespace 0 holds the built-in server nodes and is never exported.
	Namespace     uint16 `yaml:"namespace"`
	RootNodeID    string `yaml:"root_node_id"`
	DataTypesNode string `yaml:"data_types_node_id"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "opcbridge"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.Namespace == 0 {
		c.Namespace = 2
	}
	if c.RootNodeID == "" {
		c.RootNodeID = "i=84"
	}
	if c.DataTypesNode == "" {
		c.DataTypesNode = "i=90"
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}
