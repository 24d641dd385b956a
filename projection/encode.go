package projection

import (
	"encoding/json"

	"scalpengine/logger"
	"scalpengine/tradestore"
)

var encodeLog = logger.Named("projection.encode")

// encodeSettings marshals a Settings value for the SETTINGS_UPDATE journal
// payload (spec §6). Marshal of a plain struct cannot fail in practice;
// errors are logged rather than propagated since a journaling hiccup must
// never block a settings update that already committed to EngineState.
func encodeSettings(s tradestore.Settings) []byte {
	payload, err := json.Marshal(s)
	if err != nil {
		encodeLog.Errorf("settings payload encode failed: %v", err)
		return nil
	}
	return payload
}
