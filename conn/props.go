package conn

import (
	"time"

	"github.com/brinewave/mqttd/encoding"
)

// secondsToDuration converts a keep-alive value in seconds, as carried on
// the wire, to a time.Duration.
func secondsToDuration(seconds uint16) time.Duration {
	return time.Duration(seconds) * time.Second
}

// propUint32 reads a four-byte MQTT 5.0 property, returning def if the
// property is absent.
func propUint32(props *encoding.Properties, id encoding.PropertyID, def uint32) uint32 {
	if props == nil {
		return def
	}
	if v, ok := props.GetUint32(id); ok {
		return v
	}
	return def
}

// propUint16 reads a two-byte MQTT 5.0 property, returning def if the
// property is absent.
func propUint16(props *encoding.Properties, id encoding.PropertyID, def uint16) uint16 {
	if props == nil {
		return def
	}
	if v, ok := props.GetUint16(id); ok {
		return v
	}
	return def
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
