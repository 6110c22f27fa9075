// Package sources fetches the static data the map needs: country borders and
// the optional GeoIP database.
package sources

import "github.com/nodefleet/fleetview/pkg/config"

// WorldGeoJSONURL is used when a MapConfig names neither a path nor a URL.
const WorldGeoJSONURL = config.DefaultWorldURL
