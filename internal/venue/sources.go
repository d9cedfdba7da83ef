package venue

import (
	"fmt"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// dexScreenerIDs maps engine sources to DexScreener dexId values.
var dexScreenerIDs = map[domain.SourceID]string{
	domain.SourceRaydium: "raydium",
	domain.SourceOrca:    "orca",
	domain.SourceMeteora: "meteora",
}

// Sources builds the enabled price sources in configuration order.
func Sources(enabled []string, jup *Jupiter, dex *DexScreener) ([]domain.PriceSource, error) {
	out := make([]domain.PriceSource, 0, len(enabled))
	for _, name := range enabled {
		id := domain.SourceID(name)
		if id == domain.SourceJupiter {
			out = append(out, jup)
			continue
		}
		dexID, ok := dexScreenerIDs[id]
		if !ok {
			return nil, fmt.Errorf("venue: unknown source %q", name)
		}
		out = append(out, NewDexSource(id, dexID, dex))
	}
	return out, nil
}
