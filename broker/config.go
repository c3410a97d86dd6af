package broker

import "time"

// Config is the broker-wide configuration snapshot consulted by C5 during
// CONNECT negotiation and by C6/C7 for metrics and $SYS publication. Listener
// bind addresses are carried here only so DefaultConfig/tests have a single
// source of truth; dialing sockets is an external collaborator's job, not
// this package's.
type Config struct {
	SysUpdateInterval time.Duration `yaml:"sys_update_interval"`

	MaxKeepAlive             time.Duration `yaml:"max_keep_alive"`
	MaxSessionExpiryInterval uint32        `yaml:"max_session_expiry_interval"`

	ReceiveMax      uint16 `yaml:"receive_max"`
	MaxPacketSize   uint32 `yaml:"max_packet_size"` // 0 means unbounded
	MaxTopicAlias   uint16 `yaml:"max_topic_alias"`
	MaximumQoS      byte   `yaml:"maximum_qos"`
	RetainAvailable bool   `yaml:"retain_available"`

	WildcardSubscriptionAvailable bool `yaml:"wildcard_subscription_available"`

	TCPAddr string `yaml:"tcp_addr"`
	TLSAddr string `yaml:"tls_addr"`
	WSAddr  string `yaml:"ws_addr"`
}

// DefaultConfig returns the configuration defaults enumerated in spec.md §6.
func DefaultConfig() Config {
	return Config{
		SysUpdateInterval:             5 * time.Second,
		MaxKeepAlive:                  30 * time.Second,
		MaxSessionExpiryInterval:      60,
		ReceiveMax:                    32,
		MaxPacketSize:                 0,
		MaxTopicAlias:                 32,
		MaximumQoS:                    2,
		RetainAvailable:               true,
		WildcardSubscriptionAvailable: true,
		TCPAddr:                       ":1883",
		TLSAddr:                       ":8883",
		WSAddr:                        ":8080",
	}
}
