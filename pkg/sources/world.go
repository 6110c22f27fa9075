package sources

import (
	"fmt"
	"log"
	"os"

	"github.com/nodefleet/fleetview/pkg/config"
	"github.com/nodefleet/fleetview/pkg/geo"
	"github.com/nodefleet/fleetview/pkg/utils"
)

// LoadWorld reads country borders from map.world_path when set, otherwise from
// map.world_url through the download cache.
func LoadWorld(cfg config.MapConfig) (*geo.World, error) {
	var (
		data []byte
		err  error
		from string
	)
	switch {
	case cfg.WorldPath != "":
		from = cfg.WorldPath
		data, err = os.ReadFile(cfg.WorldPath)
	case cfg.WorldURL != "":
		from = cfg.WorldURL
		data, err = utils.ReadAllCached(cfg.WorldURL, true, "[WORLD]")
	default:
		from = WorldGeoJSONURL
		data, err = utils.ReadAllCached(WorldGeoJSONURL, true, "[WORLD]")
	}
	if err != nil {
		return nil, fmt.Errorf("load world from %s: %w", from, err)
	}
	w, err := geo.LoadWorld(data)
	if err != nil {
		return nil, fmt.Errorf("load world from %s: %w", from, err)
	}
	log.Printf("[GEO] Loaded %d countries from %s", len(w.Countries), from)
	return w, nil
}

// LoadLocator opens the GeoIP database at map.geoip_path. No path means no
// locator, which is not an error.
func LoadLocator(cfg config.MapConfig) (*geo.Locator, error) {
	if cfg.GeoIPPath == "" {
		return nil, nil
	}
	return geo.OpenLocator(cfg.GeoIPPath)
}
